// Package registry loads form schemas and pinned mappings from YAML files.
// JSON documents are accepted as well since they parse as YAML.
package registry

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/docfill/internal/model"
)

var knownTypes = map[string]bool{
	model.FieldTypeText:     true,
	model.FieldTypeEmail:    true,
	model.FieldTypeTel:      true,
	model.FieldTypeDate:     true,
	model.FieldTypeNumber:   true,
	model.FieldTypeURL:      true,
	model.FieldTypeCheckbox: true,
}

type schemaFile struct {
	Name   string            `yaml:"name"`
	Fields []model.FormField `yaml:"fields"`
}

// LoadFormSchema reads a form schema file. The schema name defaults to the
// file name without its extension.
func LoadFormSchema(path string) (*model.FormSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read form schema %s", path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s, err := ParseFormSchema(data, base)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: load %s", path)
	}
	return s, nil
}

// ParseFormSchema decodes and validates a schema document.
func ParseFormSchema(data []byte, defaultName string) (*model.FormSchema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: parse form schema")
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = defaultName
	}
	return BuildFormSchema(name, f.Fields)
}

// BuildFormSchema validates fields and returns an indexed schema. Names
// must be non-empty and unique; an empty type becomes text; patterns must
// compile.
func BuildFormSchema(name string, fields []model.FormField) (*model.FormSchema, error) {
	if len(fields) == 0 {
		return nil, eris.Errorf("registry: form schema %q has no fields", name)
	}

	seen := make(map[string]bool, len(fields))
	out := make([]model.FormField, len(fields))
	for i, f := range fields {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			return nil, eris.Errorf("registry: field %d has no name", i+1)
		}
		if seen[f.Name] {
			return nil, eris.Errorf("registry: duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		if strings.TrimSpace(f.Type) == "" {
			f.Type = model.FieldTypeText
		}
		if !knownTypes[f.NormalizedType()] {
			return nil, eris.Errorf("registry: field %q has unknown type %q", f.Name, f.Type)
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, eris.Wrapf(err, "registry: field %q pattern", f.Name)
			}
			f.PatternRegex = re
		}
		out[i] = f
	}
	return model.NewFormSchema(name, out), nil
}
