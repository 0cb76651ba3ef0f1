package schema

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Shapes accepted at the process boundary. Only structure is checked, field
// values are left to the adapter.
const (
	entrySchemaURL   = "mem://pagebuilder/entry.json"
	projectSchemaURL = "mem://pagebuilder/project.json"
)

const entrySchema = `{
  "$defs": {
    "entry": {
      "type": "object",
      "required": ["component"],
      "properties": {
        "id": {"type": "string"},
        "component": {"type": "string", "minLength": 1},
        "children": {"type": "array", "items": {"$ref": "#/$defs/entry"}}
      }
    }
  },
  "$ref": "#/$defs/entry"
}`

const projectSchema = `{
  "type": "object",
  "required": ["version"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "content"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "label": {"type": "string"},
          "route": {"type": "string"},
          "browserTitle": {"type": "string"},
          "order": {"type": "integer"},
          "content": {"$ref": "#/$defs/node"}
        }
      }
    },
    "documents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "root"],
        "properties": {"root": {"$ref": "` + entrySchemaURL + `"}}
      }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "type": {"type": "string", "minLength": 1},
        "props": {"type": "object"},
        "style": {"type": "object", "additionalProperties": {"type": "string"}},
        "children": {"type": "array", "items": {"$ref": "#/$defs/node"}}
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compileErr  error
	entrySch    *jsonschema.Schema
	projectSch  *jsonschema.Schema
)

func compile() error {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for url, src := range map[string]string{entrySchemaURL: entrySchema, projectSchemaURL: projectSchema} {
			doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
			if err != nil {
				compileErr = fmt.Errorf("parse schema %s: %w", url, err)
				return
			}
			if err := c.AddResource(url, doc); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", url, err)
				return
			}
		}
		if entrySch, compileErr = c.Compile(entrySchemaURL); compileErr != nil {
			return
		}
		projectSch, compileErr = c.Compile(projectSchemaURL)
	})
	return compileErr
}

// ValidateEntry checks that data is a JSON editor entry tree.
func ValidateEntry(data []byte) error {
	return validate(data, func() *jsonschema.Schema { return entrySch })
}

// ValidateProject checks that data is a JSON project file.
func ValidateProject(data []byte) error {
	return validate(data, func() *jsonschema.Schema { return projectSch })
}

func validate(data []byte, pick func() *jsonschema.Schema) error {
	if err := compile(); err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return pick().Validate(inst)
}
