package catalog

// ClassLevel is the top-level grouping used to filter batches (e.g. "10", "12").
type ClassLevel string

// ClassLevelInfo describes a supported class level.
type ClassLevelInfo struct {
	Level ClassLevel
	Label string
}

// ClassLevels lists the supported levels in display order.
var ClassLevels = []ClassLevelInfo{
	{Level: "10", Label: "Class 10 (Secondary)"},
	{Level: "12", Label: "Class 12 (Senior Secondary)"},
}

// Label returns the display label for level, or the raw level when unknown.
func (l ClassLevel) Label() string {
	for _, info := range ClassLevels {
		if info.Level == l {
			return info.Label
		}
	}
	return "Class " + string(l)
}

// Valid reports whether l is one of ClassLevels.
func (l ClassLevel) Valid() bool {
	for _, info := range ClassLevels {
		if info.Level == l {
			return true
		}
	}
	return false
}

// ResourceKind is the closed set of downloadable resource groups in a chapter.
type ResourceKind string

const (
	KindNotes     ResourceKind = "notes"
	KindPractice  ResourceKind = "dpp"
	KindSolutions ResourceKind = "solutions"
	KindTests     ResourceKind = "tests"
)

// ResourceKinds is the one place a new kind is registered; display order follows it.
var ResourceKinds = []ResourceKindInfo{
	{Kind: KindNotes, Label: "Notes PDF", Aliases: []string{"note"}},
	{Kind: KindPractice, Label: "DPP PDF", Aliases: []string{"practice-problems", "practice"}},
	{Kind: KindSolutions, Label: "Solution PDF", Aliases: []string{"solution"}},
	{Kind: KindTests, Label: "Test PDF", Aliases: []string{"test"}},
}

// ResourceKindInfo describes a resource kind.
type ResourceKindInfo struct {
	Kind    ResourceKind
	Label   string
	Aliases []string
}

// ParseResourceKind resolves a kind name or alias.
func ParseResourceKind(s string) (ResourceKind, bool) {
	for _, info := range ResourceKinds {
		if string(info.Kind) == s {
			return info.Kind, true
		}
		for _, a := range info.Aliases {
			if a == s {
				return info.Kind, true
			}
		}
	}
	return "", false
}

// Label returns the display label of k.
func (k ResourceKind) Label() string {
	for _, info := range ResourceKinds {
		if info.Kind == k {
			return info.Label
		}
	}
	return string(k)
}

// Batch is a course offering for one class level.
type Batch struct {
	ID         string     `yaml:"id" json:"id"`
	Name       string     `yaml:"name" json:"name"`
	ClassLevel ClassLevel `yaml:"class_level" json:"classLevel"`
	Subjects   []Subject  `yaml:"subjects" json:"subjects"`
}

// Subject is owned by exactly one batch.
type Subject struct {
	ID       string    `yaml:"id" json:"id"`
	Name     string    `yaml:"name" json:"name"`
	Chapters []Chapter `yaml:"chapters" json:"chapters"`
}

// Chapter groups lectures and the four resource groups.
type Chapter struct {
	ID          string                      `yaml:"id" json:"id"`
	Name        string                      `yaml:"name" json:"name"`
	Description string                      `yaml:"description,omitempty" json:"description,omitempty"`
	Lectures    []Lecture                   `yaml:"lectures" json:"lectures"`
	Resources   map[ResourceKind][]Resource `yaml:"resources,omitempty" json:"resources"`
}

// ResourcesOf returns the resources of one kind in insertion order.
func (c Chapter) ResourcesOf(kind ResourceKind) []Resource {
	return c.Resources[kind]
}

// Lecture is one playable video.
type Lecture struct {
	ID         string `yaml:"id" json:"id"`
	Title      string `yaml:"title" json:"title"`
	VideoRef   string `yaml:"video" json:"video"`
	Duration   string `yaml:"duration,omitempty" json:"duration,omitempty"`
	Difficulty string `yaml:"difficulty,omitempty" json:"difficulty,omitempty"`
}

// Resource is a downloadable document. Tests may carry a separate solutions URL.
type Resource struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	URL         string       `yaml:"url" json:"url"`
	SolutionURL string       `yaml:"solution_url,omitempty" json:"solutionUrl,omitempty"`
	Kind        ResourceKind `yaml:"-" json:"kind"`
}

// SubjectRef addresses a subject.
type SubjectRef struct {
	BatchID   string `json:"batchId"`
	SubjectID string `json:"subjectId"`
}

// ChapterRef addresses a chapter. It is comparable and used as a map key.
type ChapterRef struct {
	BatchID   string `json:"batchId"`
	SubjectID string `json:"subjectId"`
	ChapterID string `json:"chapterId"`
}

// Subject returns the parent subject reference.
func (r ChapterRef) Subject() SubjectRef {
	return SubjectRef{BatchID: r.BatchID, SubjectID: r.SubjectID}
}

// Chapter builds a chapter reference under r.
func (r SubjectRef) Chapter(chapterID string) ChapterRef {
	return ChapterRef{BatchID: r.BatchID, SubjectID: r.SubjectID, ChapterID: chapterID}
}
