package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

func sampleTree(t *testing.T) *catalog.Tree {
	t.Helper()
	tree, err := catalog.NewTree([]catalog.Batch{
		{
			ID: "b1", Name: "Batch One", ClassLevel: "10",
			Subjects: []catalog.Subject{
				{
					ID: "s1", Name: "Maths",
					Chapters: []catalog.Chapter{
						{
							ID: "c1", Name: "Numbers",
							Lectures: []catalog.Lecture{
								{ID: "l1", Title: "One", VideoRef: "v1"},
								{ID: "l2", Title: "Two", VideoRef: "v2"},
							},
							Resources: map[catalog.ResourceKind][]catalog.Resource{
								catalog.KindNotes: {{ID: "n1", Title: "Notes", URL: "https://x/n1.pdf"}},
							},
						},
					},
				},
				{ID: "s2", Name: "Science"},
			},
		},
		{ID: "b2", Name: "Batch Two", ClassLevel: "12"},
	})
	require.NoError(t, err)
	return tree
}

func TestNewTree_RejectsInvalidSeed(t *testing.T) {
	_, err := catalog.NewTree([]catalog.Batch{
		{ID: "b1", Name: "One", ClassLevel: "10"},
		{ID: "b1", Name: "Again", ClassLevel: "10"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTree_SubjectLookupPolicy(t *testing.T) {
	tree := sampleTree(t)

	first, ok := tree.Subject("b1", "")
	require.True(t, ok)
	assert.Equal(t, "s1", first.ID)

	second, ok := tree.Subject("b1", "s2")
	require.True(t, ok)
	assert.Equal(t, "s2", second.ID)

	_, ok = tree.Subject("b1", "nonexistent-id")
	assert.False(t, ok, "unknown subject must not fall back to the first")

	_, ok = tree.Subject("b2", "")
	assert.False(t, ok, "batch without subjects has no default")

	_, ok = tree.Subject("missing", "")
	assert.False(t, ok)
}

func TestTree_ChapterAndLectureLookup(t *testing.T) {
	tree := sampleTree(t)
	ref := catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}

	ch, ok := tree.Chapter(ref)
	require.True(t, ok)
	assert.Equal(t, "Numbers", ch.Name)
	require.Len(t, ch.Lectures, 2)
	assert.Equal(t, "l1", ch.Lectures[0].ID)
	assert.Len(t, ch.ResourcesOf(catalog.KindNotes), 1)

	l, ok := tree.Lecture(ref, "l2")
	require.True(t, ok)
	assert.Equal(t, "Two", l.Title)

	_, ok = tree.Lecture(ref, "l9")
	assert.False(t, ok)

	_, ok = tree.Chapter(catalog.ChapterRef{BatchID: "b1", ChapterID: "c1"})
	assert.True(t, ok, "empty subject id resolves to the first subject")
}

func TestTree_LookupsReturnCopies(t *testing.T) {
	tree := sampleTree(t)
	ref := catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}

	ch, _ := tree.Chapter(ref)
	ch.Lectures[0].Title = "mutated"
	ch.Resources[catalog.KindNotes] = nil

	again, _ := tree.Chapter(ref)
	assert.Equal(t, "One", again.Lectures[0].Title)
	assert.Len(t, again.ResourcesOf(catalog.KindNotes), 1)
}

func TestTree_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		create func(*catalog.Tree) error
		reason string
		field  string
	}{
		{
			name: "empty batch name",
			create: func(tr *catalog.Tree) error {
				_, err := tr.CreateBatch(catalog.Batch{ID: "b3", Name: "   ", ClassLevel: "10"})
				return err
			},
			reason: apperr.ReasonNameRequired, field: "name",
		},
		{
			name: "duplicate batch",
			create: func(tr *catalog.Tree) error {
				_, err := tr.CreateBatch(catalog.Batch{ID: "b1", Name: "Dup", ClassLevel: "10"})
				return err
			},
			reason: apperr.ReasonDuplicateID, field: "id",
		},
		{
			name: "unknown class",
			create: func(tr *catalog.Tree) error {
				_, err := tr.CreateBatch(catalog.Batch{ID: "b3", Name: "New", ClassLevel: "11"})
				return err
			},
			reason: apperr.ReasonInvalidClass, field: "class_level",
		},
		{
			name: "id with separator",
			create: func(tr *catalog.Tree) error {
				_, err := tr.CreateBatch(catalog.Batch{ID: "b|3", Name: "New", ClassLevel: "10"})
				return err
			},
			reason: apperr.ReasonInvalidID, field: "id",
		},
		{
			name: "subject without parent",
			create: func(tr *catalog.Tree) error {
				_, err := tr.CreateSubject("nope", catalog.Subject{ID: "s9", Name: "X"})
				return err
			},
			reason: apperr.ReasonParentNotFound, field: "batch_id",
		},
		{
			name: "chapter without parent",
			create: func(tr *catalog.Tree) error {
				_, err := tr.CreateChapter(catalog.SubjectRef{BatchID: "b1", SubjectID: "nope"}, catalog.Chapter{ID: "c9", Name: "X"})
				return err
			},
			reason: apperr.ReasonParentNotFound, field: "subject_id",
		},
		{
			name: "duplicate chapter",
			create: func(tr *catalog.Tree) error {
				_, err := tr.CreateChapter(catalog.SubjectRef{BatchID: "b1", SubjectID: "s1"}, catalog.Chapter{ID: "c1", Name: "X"})
				return err
			},
			reason: apperr.ReasonDuplicateID, field: "id",
		},
		{
			name: "lecture without video",
			create: func(tr *catalog.Tree) error {
				_, err := tr.AddLecture(catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}, catalog.Lecture{ID: "l3", Title: "Three"})
				return err
			},
			reason: apperr.ReasonVideoRequired, field: "video",
		},
		{
			name: "resource with unknown kind",
			create: func(tr *catalog.Tree) error {
				_, err := tr.AddResource(catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}, catalog.Resource{ID: "r", Title: "R", URL: "u", Kind: "videos"})
				return err
			},
			reason: apperr.ReasonInvalidKind, field: "kind",
		},
		{
			name: "resource without url",
			create: func(tr *catalog.Tree) error {
				_, err := tr.AddResource(catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}, catalog.Resource{ID: "r", Title: "R", Kind: catalog.KindTests})
				return err
			},
			reason: apperr.ReasonURLRequired, field: "url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := sampleTree(t)
			before := tree.Batches()
			rev := tree.Revision()

			err := tt.create(tree)

			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, apperr.KindValidation, ae.Kind)
			assert.Equal(t, tt.reason, ae.Reason)
			assert.Equal(t, tt.field, ae.Field)
			assert.Equal(t, before, tree.Batches())
			assert.Equal(t, rev, tree.Revision())
		})
	}
}

func TestTree_CreateTrimsAndAppends(t *testing.T) {
	tree := sampleTree(t)

	b, err := tree.CreateBatch(catalog.Batch{ID: " b3 ", Name: "  Crash Course ", ClassLevel: "12"})
	require.NoError(t, err)
	assert.Equal(t, "b3", b.ID)
	assert.Equal(t, "Crash Course", b.Name)

	batches := tree.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, "b3", batches[2].ID)

	twelve := tree.BatchesByClass("12")
	require.Len(t, twelve, 2)
	assert.Equal(t, []string{"b2", "b3"}, []string{twelve[0].ID, twelve[1].ID})
}

func TestTree_AddResourceClearsSolutionOutsideTests(t *testing.T) {
	tree := sampleTree(t)
	ref := catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}

	notes, err := tree.AddResource(ref, catalog.Resource{ID: "n2", Title: "More", URL: "u", SolutionURL: "s", Kind: catalog.KindNotes})
	require.NoError(t, err)
	assert.Empty(t, notes.SolutionURL)

	test, err := tree.AddResource(ref, catalog.Resource{ID: "t1", Title: "Test", URL: "u", SolutionURL: "s", Kind: catalog.KindTests})
	require.NoError(t, err)
	assert.Equal(t, "s", test.SolutionURL)

	// Ids only need to be unique within a kind group.
	_, err = tree.AddResource(ref, catalog.Resource{ID: "t1", Title: "Same id", URL: "u", Kind: catalog.KindPractice})
	assert.NoError(t, err)
}

func TestTree_DeleteCascades(t *testing.T) {
	tree := sampleTree(t)

	require.NoError(t, tree.DeleteBatch("b1"))
	_, ok := tree.Batch("b1")
	assert.False(t, ok)
	_, ok = tree.Chapter(catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"})
	assert.False(t, ok)

	// Recreating the id starts from an empty batch.
	_, err := tree.CreateBatch(catalog.Batch{ID: "b1", Name: "Fresh", ClassLevel: "10"})
	require.NoError(t, err)
	_, ok = tree.Subject("b1", "")
	assert.False(t, ok)
}

func TestTree_DeleteNotFound(t *testing.T) {
	tree := sampleTree(t)
	ref := catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}

	errs := []error{
		tree.DeleteBatch("nope"),
		tree.DeleteSubject(catalog.SubjectRef{BatchID: "b1", SubjectID: "nope"}),
		tree.DeleteChapter(ref.Subject().Chapter("nope")),
		tree.RemoveLecture(ref, "nope"),
		tree.RemoveResource(ref, catalog.KindNotes, "nope"),
	}
	for _, err := range errs {
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}
}

func TestTree_RemoveExactlyOne(t *testing.T) {
	tree := sampleTree(t)
	ref := catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}

	require.NoError(t, tree.RemoveLecture(ref, "l1"))
	ch, _ := tree.Chapter(ref)
	require.Len(t, ch.Lectures, 1)
	assert.Equal(t, "l2", ch.Lectures[0].ID)

	require.NoError(t, tree.RemoveResource(ref, catalog.KindNotes, "n1"))
	ch, _ = tree.Chapter(ref)
	assert.Empty(t, ch.ResourcesOf(catalog.KindNotes))
}

func TestTree_CloneAndCommit(t *testing.T) {
	tree := sampleTree(t)
	base := tree.Revision()
	draft := tree.Clone()

	add := func(tr *catalog.Tree) error {
		_, err := tr.CreateBatch(catalog.Batch{ID: "b3", Name: "Draft", ClassLevel: "10"})
		return err
	}
	require.NoError(t, add(draft))
	assert.Len(t, tree.Batches(), 2, "live tree untouched until commit")

	require.True(t, tree.Commit(draft, base, add))
	assert.Len(t, tree.Batches(), 3)
	assert.Greater(t, tree.Revision(), base)
}

func TestTree_CommitReplaysOnNewerTree(t *testing.T) {
	tree := sampleTree(t)
	ref := catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}
	base := tree.Revision()
	draft := tree.Clone()

	add := func(tr *catalog.Tree) error {
		_, err := tr.AddLecture(ref, catalog.Lecture{ID: "l3", Title: "Three", VideoRef: "v3"})
		return err
	}
	require.NoError(t, add(draft))

	// Another writer lands first.
	_, err := tree.CreateBatch(catalog.Batch{ID: "b4", Name: "Other", ClassLevel: "12"})
	require.NoError(t, err)

	require.True(t, tree.Commit(draft, base, add))
	_, ok := tree.Batch("b4")
	assert.True(t, ok, "concurrent change kept")
	_, ok = tree.Lecture(ref, "l3")
	assert.True(t, ok, "committed change replayed")

	t.Run("change that no longer applies is dropped", func(t *testing.T) {
		base := tree.Revision()
		draft := tree.Clone()
		del := func(tr *catalog.Tree) error { return tr.DeleteBatch("b4") }
		require.NoError(t, del(draft))
		require.NoError(t, tree.DeleteBatch("b4"))
		rev := tree.Revision()

		assert.False(t, tree.Commit(draft, base, del))
		assert.Equal(t, rev, tree.Revision())
	})
}

func TestTree_RefreshChapter(t *testing.T) {
	tree := sampleTree(t)
	ref := catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}

	ok := tree.RefreshChapter(ref, catalog.Chapter{Lectures: []catalog.Lecture{{ID: "l9", Title: "Nine", VideoRef: "v"}}}, tree.Revision())
	require.True(t, ok)
	ch, _ := tree.Chapter(ref)
	require.Len(t, ch.Lectures, 1)
	assert.Equal(t, "l9", ch.Lectures[0].ID)
	assert.Equal(t, "Numbers", ch.Name)

	assert.False(t, tree.RefreshChapter(ref.Subject().Chapter("gone"), catalog.Chapter{}, tree.Revision()))
}

func TestTree_RefreshChapterKeepsNewerTree(t *testing.T) {
	tree := sampleTree(t)
	ref := catalog.ChapterRef{BatchID: "b1", SubjectID: "s1", ChapterID: "c1"}
	since := tree.Revision()
	stale, _ := tree.Chapter(ref)

	_, err := tree.AddLecture(ref, catalog.Lecture{ID: "l3", Title: "Three", VideoRef: "v3"})
	require.NoError(t, err)

	assert.False(t, tree.RefreshChapter(ref, stale, since))
	_, ok := tree.Lecture(ref, "l3")
	assert.True(t, ok)
}
