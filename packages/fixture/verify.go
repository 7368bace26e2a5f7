package fixture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// MetadataSchema is the JSON schema every ".headers" file must satisfy.
const MetadataSchema = `{
  "type": "object",
  "properties": {
    "statusCode": {"type": "integer", "minimum": 100, "maximum": 599},
    "headers": {
      "type": "object",
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    },
    "url": {"type": "string"},
    "time": {"type": "integer", "minimum": 0},
    "request": {
      "type": "object",
      "properties": {
        "method": {"type": "string"},
        "headers": {"type": "object", "additionalProperties": {"type": "string"}}
      }
    },
    "timeout": {"type": "boolean"},
    "error": {"type": "string"},
    "recordingId": {"type": "string"}
  },
  "required": ["time"],
  "anyOf": [
    {"required": ["statusCode"]},
    {"required": ["timeout"]},
    {"required": ["error"]}
  ]
}`

// Problem describes one invalid fixture.
type Problem struct {
	Path   string
	Errors []string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Path, strings.Join(p.Errors, "; "))
}

// VerifyReport is the outcome of Verify.
type VerifyReport struct {
	Checked  int
	Problems []Problem
}

// OK reports whether every fixture passed.
func (r VerifyReport) OK() bool {
	return len(r.Problems) == 0
}

// Verify validates every fixture under root against MetadataSchema and checks
// that non-sentinel fixtures have a body.
func Verify(root string) (VerifyReport, error) {
	var report VerifyReport

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(MetadataSchema))
	if err != nil {
		return report, fmt.Errorf("failed to compile metadata schema: %w", err)
	}

	store := NewStore()
	err = Walk(root, func(e Entry) error {
		report.Checked++
		if errs := verifyOne(schema, store, e.Path); len(errs) > 0 {
			report.Problems = append(report.Problems, Problem{Path: e.Path, Errors: errs})
		}
		return nil
	})
	return report, err
}

func verifyOne(schema *gojsonschema.Schema, store *Store, path string) []string {
	data, err := os.ReadFile(path + HeadersExt)
	if err != nil {
		return []string{err.Error()}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return []string{fmt.Sprintf("schema validation error: %v", err)}
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	if len(errs) > 0 {
		return errs
	}

	meta, err := store.ReadHeaders(path)
	if err != nil {
		return []string{err.Error()}
	}
	if !meta.IsSentinel() {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, "body missing")
		}
	}
	return errs
}

func removeIfExists(file string) error {
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
