package model

import (
	"regexp"
	"strings"
)

// Form field types understood by the mapper and the fill targets. Unknown
// types are treated as text.
const (
	FieldTypeText     = "text"
	FieldTypeEmail    = "email"
	FieldTypeTel      = "tel"
	FieldTypeDate     = "date"
	FieldTypeNumber   = "number"
	FieldTypeURL      = "url"
	FieldTypeCheckbox = "checkbox"
)

// FormField is one field of a target form schema.
type FormField struct {
	Name         string         `json:"name" yaml:"name"`
	Type         string         `json:"type" yaml:"type"`
	Required     bool           `json:"required" yaml:"required"`
	Label        string         `json:"label,omitempty" yaml:"label,omitempty"`
	Cell         string         `json:"cell,omitempty" yaml:"cell,omitempty"`
	Pattern      string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	PatternRegex *regexp.Regexp `json:"-" yaml:"-"` // pre-compiled from Pattern at schema load
}

// NormalizedType returns the lower-cased type, defaulting to text.
func (f FormField) NormalizedType() string {
	t := strings.ToLower(strings.TrimSpace(f.Type))
	switch t {
	case "":
		return FieldTypeText
	case "phone", "telephone":
		return FieldTypeTel
	case "integer", "int", "float", "decimal", "currency":
		return FieldTypeNumber
	case "bool", "boolean":
		return FieldTypeCheckbox
	}
	return t
}

// FormSchema is an ordered, indexed collection of form fields.
type FormSchema struct {
	Name     string      `json:"name" yaml:"name"`
	Fields   []FormField `json:"fields" yaml:"fields"`
	byName   map[string]*FormField
	required []*FormField
}

// NewFormSchema creates a FormSchema with indexed lookups.
// Pre-compiles validation regexes from FormField.Pattern; an invalid pattern
// is dropped rather than failing the whole schema.
func NewFormSchema(name string, fields []FormField) *FormSchema {
	s := &FormSchema{
		Name:   name,
		Fields: fields,
		byName: make(map[string]*FormField, len(fields)),
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Pattern != "" && f.PatternRegex == nil {
			if re, err := regexp.Compile(f.Pattern); err == nil {
				f.PatternRegex = re
			}
		}
		s.byName[f.Name] = f
		if f.Required {
			s.required = append(s.required, f)
		}
	}
	return s
}

// ByName returns the field with the given name, or nil if not found.
func (s *FormSchema) ByName(name string) *FormField {
	if s == nil || s.byName == nil {
		return nil
	}
	return s.byName[name]
}

// Required returns all required fields in schema order.
func (s *FormSchema) Required() []*FormField {
	return s.required
}

// MappingStrategy names the rule that produced a mapping.
type MappingStrategy string

const (
	StrategyExact  MappingStrategy = "exact"
	StrategyAlias  MappingStrategy = "alias"
	StrategyFuzzy  MappingStrategy = "fuzzy"
	StrategyType   MappingStrategy = "type"
	StrategyManual MappingStrategy = "manual"
	StrategyNone   MappingStrategy = "none"
)

// FieldMapping pairs one form field with the source field that fills it.
// A nil DocumentField means the form field is unmapped and Confidence is 0.
type FieldMapping struct {
	FormField      string          `json:"formField" yaml:"formField"`
	DocumentField  *string         `json:"documentField" yaml:"documentField"`
	Confidence     float64         `json:"confidence" yaml:"confidence"`
	ManualOverride bool            `json:"manualOverride" yaml:"manualOverride"`
	Strategy       MappingStrategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	// Suggestions ranks the scored candidates, best first, for review.
	// The winner, if any, is the first entry. Pinned mappings carry none.
	Suggestions []Suggestion `json:"suggestions,omitempty" yaml:"-"`
}

// Suggestion is one ranked candidate for a form field. Score is the raw
// match score in [0, 1]; Confidence is what the mapping would carry if the
// candidate were chosen.
type Suggestion struct {
	DocumentField string          `json:"documentField"`
	DocumentID    string          `json:"documentId,omitempty"`
	Score         float64         `json:"score"`
	Confidence    float64         `json:"confidence"`
	Strategy      MappingStrategy `json:"strategy"`
}

// Mapped reports whether the mapping has a source field.
func (m FieldMapping) Mapped() bool {
	return m.DocumentField != nil
}

// Source returns the mapped source field name, or "" when unmapped.
func (m FieldMapping) Source() string {
	if m.DocumentField == nil {
		return ""
	}
	return *m.DocumentField
}

// MappingResult holds exactly one mapping per form field, in schema order.
type MappingResult struct {
	Mappings           []FieldMapping `json:"mappings"`
	UnmappedFormFields []string       `json:"unmappedFormFields"`
}

// FailedField records a form field that could not be written.
type FailedField struct {
	Field string `json:"field"`
	Cause string `json:"cause"`
}

// FillResult is the outcome of writing a mapping into a target form.
type FillResult struct {
	FilledFields      []string      `json:"filledFields"`
	FailedFields      []FailedField `json:"failedFields"`
	Warnings          []string      `json:"warnings"`
	OverallConfidence *float64      `json:"overallConfidence,omitempty"`
}
