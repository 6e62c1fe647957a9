package catalog

import "slices"

func cloneBatches(in []Batch) []Batch {
	if in == nil {
		return nil
	}
	out := make([]Batch, len(in))
	for i, b := range in {
		out[i] = cloneBatch(b)
	}
	return out
}

func cloneBatch(b Batch) Batch {
	out := b
	if b.Subjects != nil {
		out.Subjects = make([]Subject, len(b.Subjects))
		for i, s := range b.Subjects {
			out.Subjects[i] = cloneSubject(s)
		}
	}
	return out
}

func cloneSubject(s Subject) Subject {
	out := s
	if s.Chapters != nil {
		out.Chapters = make([]Chapter, len(s.Chapters))
		for i, c := range s.Chapters {
			out.Chapters[i] = cloneChapter(c)
		}
	}
	return out
}

func cloneChapter(c Chapter) Chapter {
	out := c
	out.Lectures = slices.Clone(c.Lectures)
	out.Resources = cloneResources(c.Resources)
	return out
}

func cloneResources(in map[ResourceKind][]Resource) map[ResourceKind][]Resource {
	out := make(map[ResourceKind][]Resource, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}
