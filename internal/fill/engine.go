package fill

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfill/internal/model"
)

// DefaultLowConfidenceThreshold is the mapping confidence, in percent, below
// which a mapped field is flagged for review.
const DefaultLowConfidenceThreshold = 50

// Engine writes mappings into forms.
type Engine struct {
	LowConfidenceThreshold float64
}

// NewEngine returns an Engine with the default threshold.
func NewEngine() *Engine {
	return &Engine{LowConfidenceThreshold: DefaultLowConfidenceThreshold}
}

// Fill writes every mapped field into form. It never stops early: a write
// that fails or panics is recorded in FailedFields and the remaining fields
// are still written. OverallConfidence is left for the caller to set.
func (e *Engine) Fill(form Form, mappings []model.FieldMapping, data model.DocumentData) model.FillResult {
	res := model.FillResult{
		FilledFields: make([]string, 0, len(mappings)),
		FailedFields: make([]model.FailedField, 0),
		Warnings:     make([]string, 0),
	}
	written := make(map[string]bool, len(mappings))

	var lowConf []string
	for _, m := range mappings {
		if !m.Mapped() {
			continue
		}
		if m.Confidence < e.LowConfidenceThreshold {
			lowConf = append(lowConf, m.FormField)
		}

		fv, ok := data[m.Source()]
		if !ok {
			res.FailedFields = append(res.FailedFields, model.FailedField{
				Field: m.FormField,
				Cause: fmt.Sprintf("no value for source field %q", m.Source()),
			})
			continue
		}

		if err := safeSet(form, m.FormField, fv.Normalize().Value); err != nil {
			res.FailedFields = append(res.FailedFields, model.FailedField{Field: m.FormField, Cause: err.Error()})
			continue
		}
		res.FilledFields = append(res.FilledFields, m.FormField)
		written[m.FormField] = true
	}

	if len(lowConf) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"%d mapped field(s) below %s confidence, review before submitting: %s",
			len(lowConf), FormatPercent(e.LowConfidenceThreshold), strings.Join(lowConf, ", "),
		))
	}
	for _, f := range form.Schema() {
		if f.Required && !written[f.Name] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("required field %q was not filled", f.Name))
		}
	}

	zap.L().Info("fill: complete",
		zap.Int("filled", len(res.FilledFields)),
		zap.Int("failed", len(res.FailedFields)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res
}

// safeSet turns a panic inside a form implementation into a field error.
func safeSet(form Form, name string, value any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("fill: form panicked", zap.String("field", name), zap.Any("panic", r))
			err = eris.Errorf("write panicked: %v", r)
		}
	}()
	return form.SetField(name, value)
}
