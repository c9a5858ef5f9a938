package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Source identifies the extraction method that produced a value.
type Source string

const (
	SourceOCR     Source = "ocr"
	SourcePattern Source = "pattern"
	SourceLLM     Source = "llm"
)

// Valid reports whether s is one of the known extraction sources.
func (s Source) Valid() bool {
	switch s {
	case SourceOCR, SourcePattern, SourceLLM:
		return true
	default:
		return false
	}
}

// ExtractedFieldResult is one field value extracted from one document.
// Confidence is in [0, 100] and is only comparable between results of the
// same Source; it is a ranking signal, not a probability.
type ExtractedFieldResult struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	RawText    string  `json:"rawText,omitempty"`
}

// FieldValue is the tagged union stored in DocumentData: either a structured
// ExtractedFieldResult or a bare legacy value that predates confidence tracking.
type FieldValue struct {
	Result *ExtractedFieldResult
	Legacy any
}

// Structured wraps an extraction result as a FieldValue.
func Structured(r ExtractedFieldResult) FieldValue {
	return FieldValue{Result: &r}
}

// LegacyValue wraps a bare value as a FieldValue.
func LegacyValue(v any) FieldValue {
	return FieldValue{Legacy: v}
}

// IsLegacy reports whether the value predates the structured format.
func (v FieldValue) IsLegacy() bool {
	return v.Result == nil
}

// Normalize returns the structured form of v. Legacy values get the
// conservative default: confidence 0, source pattern, and the raw text when
// the value is a string. Confidence 0 here means "unknown", not "wrong".
func (v FieldValue) Normalize() ExtractedFieldResult {
	if v.Result != nil {
		return *v.Result
	}
	val := normalizeLegacy(v.Legacy)
	r := ExtractedFieldResult{
		Value:      val,
		Confidence: 0,
		Source:     SourcePattern,
	}
	if s, ok := val.(string); ok {
		r.RawText = s
	}
	return r
}

// MarshalJSON writes structured values as objects and legacy values verbatim.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.Result != nil {
		return json.Marshal(v.Result)
	}
	return json.Marshal(v.Legacy)
}

// UnmarshalJSON classifies the raw JSON as structured or legacy.
func (v *FieldValue) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = ParseFieldValue(raw)
	return nil
}

// ParseFieldValue classifies a decoded value. A value is structured only if
// it is an object carrying value, confidence and source with a known source.
func ParseFieldValue(raw any) FieldValue {
	switch t := raw.(type) {
	case FieldValue:
		return t
	case ExtractedFieldResult:
		return Structured(t)
	case *ExtractedFieldResult:
		if t == nil {
			return LegacyValue(nil)
		}
		return Structured(*t)
	case map[string]any:
		if r, ok := resultFromMap(t); ok {
			return Structured(r)
		}
	}
	return LegacyValue(raw)
}

func resultFromMap(m map[string]any) (ExtractedFieldResult, bool) {
	value, hasValue := m["value"]
	conf, hasConf := m["confidence"]
	src, hasSrc := m["source"]
	if !hasValue || !hasConf || !hasSrc {
		return ExtractedFieldResult{}, false
	}
	s, ok := src.(string)
	if !ok || !Source(s).Valid() {
		return ExtractedFieldResult{}, false
	}
	c, ok := toFloat(conf)
	if !ok {
		return ExtractedFieldResult{}, false
	}
	r := ExtractedFieldResult{
		Value:      value,
		Confidence: c,
		Source:     Source(s),
	}
	if rt, ok := m["rawText"].(string); ok {
		r.RawText = rt
	}
	return r, true
}

// normalizeLegacy reduces legacy shapes to a scalar: arrays yield their first
// element, objects with a "value" key yield that value, other objects are
// JSON-encoded.
func normalizeLegacy(v any) any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil
		}
		return normalizeLegacy(t[0])
	case []string:
		if len(t) == 0 {
			return nil
		}
		return t[0]
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return normalizeLegacy(inner)
		}
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// DocumentData maps field names to extracted values in either format.
type DocumentData map[string]FieldValue

// ParseDocumentData decodes a stored extraction record. An empty payload
// yields an empty map.
func ParseDocumentData(b []byte) (DocumentData, error) {
	data := DocumentData{}
	if len(bytes.TrimSpace(b)) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Normalize converts every field to the structured form.
func (d DocumentData) Normalize() map[string]ExtractedFieldResult {
	out := make(map[string]ExtractedFieldResult, len(d))
	for name, v := range d {
		out[name] = v.Normalize()
	}
	return out
}

// LegacyFields returns the names of fields still in the legacy format.
func (d DocumentData) LegacyFields() []string {
	var names []string
	for name, v := range d {
		if v.IsLegacy() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsEmptyValue reports whether v carries no information: nil or "".
func IsEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
