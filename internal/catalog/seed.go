package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// seedSchema constrains seed files before they are decoded into the tree types.
const seedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["batches"],
  "properties": {
    "batches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "class_level"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "class_level": {"type": "string", "minLength": 1},
          "subjects": {"type": ["array", "null"], "items": {"$ref": "#/definitions/subject"}}
        }
      }
    }
  },
  "definitions": {
    "subject": {
      "type": "object",
      "required": ["id", "name"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "chapters": {"type": ["array", "null"], "items": {"$ref": "#/definitions/chapter"}}
      }
    },
    "chapter": {
      "type": "object",
      "required": ["id", "name"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "lectures": {"type": ["array", "null"], "items": {"$ref": "#/definitions/lecture"}},
        "resources": {
          "type": ["object", "null"],
          "additionalProperties": {"type": "array", "items": {"$ref": "#/definitions/resource"}}
        }
      }
    },
    "lecture": {
      "type": "object",
      "required": ["id", "title", "video"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "title": {"type": "string", "minLength": 1},
        "video": {"type": "string", "minLength": 1},
        "duration": {"type": "string"},
        "difficulty": {"type": "string"}
      }
    },
    "resource": {
      "type": "object",
      "required": ["id", "title", "url"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "title": {"type": "string", "minLength": 1},
        "url": {"type": "string", "minLength": 1},
        "solution_url": {"type": "string"}
      }
    }
  }
}`

var seedSchemaLoader = gojsonschema.NewStringLoader(seedSchema)

type seedFile struct {
	Batches []Batch `yaml:"batches"`
}

// ParseSeed validates and decodes one YAML seed document.
func ParseSeed(data []byte) ([]Batch, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	if raw == nil {
		return nil, errors.New("seed document is empty")
	}

	result, err := gojsonschema.Validate(seedSchemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate seed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("seed does not match schema: %s", strings.Join(msgs, "; "))
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for bi := range f.Batches {
		for si := range f.Batches[bi].Subjects {
			chapters := f.Batches[bi].Subjects[si].Chapters
			for ci := range chapters {
				res, err := normalizeKinds(chapters[ci].Resources)
				if err != nil {
					return nil, fmt.Errorf("chapter %q: %w", chapters[ci].ID, err)
				}
				chapters[ci].Resources = res
			}
		}
	}
	return f.Batches, nil
}

// LoadSeed reads a seed file, or every .yaml/.yml file under a directory in
// lexical order. Files in a directory that fail to parse are skipped.
func LoadSeed(path string) ([]Batch, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat seed: %w", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed: %w", err)
		}
		return ParseSeed(data)
	}

	var batches []Batch
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(p, ".yaml") && !strings.HasSuffix(p, ".yml") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		parsed, err := ParseSeed(data)
		if err != nil {
			slog.Warn("skipping invalid seed file", "path", p, "error", err)
			return nil
		}
		batches = append(batches, parsed...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk seed dir: %w", err)
	}
	slog.Info("catalog seed loaded", "path", path, "batches", len(batches))
	return batches, nil
}

func normalizeKinds(in map[ResourceKind][]Resource) (map[ResourceKind][]Resource, error) {
	out := make(map[ResourceKind][]Resource, len(in))
	for _, info := range ResourceKinds {
		// Canonical key first, then aliases, so ordering is deterministic.
		names := append([]string{string(info.Kind)}, info.Aliases...)
		for _, name := range names {
			for _, r := range in[ResourceKind(name)] {
				r.Kind = info.Kind
				out[info.Kind] = append(out[info.Kind], r)
			}
		}
	}
	for k := range in {
		if _, ok := ParseResourceKind(string(k)); !ok {
			return nil, fmt.Errorf("unknown resource kind %q", k)
		}
	}
	return out, nil
}

// DefaultBatches is the demo catalog used when nothing else is configured.
func DefaultBatches() []Batch {
	return []Batch{
		{
			ID:         "class10-main",
			Name:       "Class 10 – Board Booster",
			ClassLevel: "10",
			Subjects: []Subject{
				{
					ID:   "math10",
					Name: "Mathematics",
					Chapters: []Chapter{
						{
							ID:          "math10-real",
							Name:        "Chapter 1: Real Numbers",
							Description: "Euclid's division lemma, fundamental theorem of arithmetic…",
							Lectures: []Lecture{
								{ID: "L1", Title: "Introduction to Real Numbers", VideoRef: "dQw4w9WgXcQ"},
							},
						},
					},
				},
			},
		},
		{
			ID:         "class12-main",
			Name:       "Class 12 – Placeholder Batch",
			ClassLevel: "12",
		},
	}
}
