package profile

import (
	"sort"
	"time"

	"github.com/sells-group/docfill/internal/model"
)

// update is one candidate write into a profile field.
type update struct {
	field      string
	value      any
	confidence *float64
	source     model.Source
}

// Summary describes what one merge did to a profile.
type Summary struct {
	Updated          []string `json:"updated"`
	SkippedProtected []string `json:"skippedProtected"`
	SkippedEmpty     []string `json:"skippedEmpty"`
}

// Changed reports whether at least one field was written.
func (s Summary) Changed() bool {
	return len(s.Updated) > 0
}

// updatesFromFields converts bare merge input. Values that already carry the
// structured extraction shape keep their confidence and source; anything else
// is reduced to a scalar the same way a document's legacy values are.
func updatesFromFields(fields map[string]any) []update {
	data := make(model.DocumentData, len(fields))
	for name, raw := range fields {
		data[name] = model.ParseFieldValue(raw)
	}
	return updatesFromDocument(data)
}

// updatesFromDocument converts a document's extraction record. Legacy values
// go through the same normalization the migration applies, but carry no
// confidence because none was ever measured.
func updatesFromDocument(data model.DocumentData) []update {
	out := make([]update, 0, len(data))
	for name, fv := range data {
		if fv.IsLegacy() {
			out = append(out, update{field: name, value: fv.Normalize().Value})
			continue
		}
		out = append(out, fromResult(name, *fv.Result))
	}
	return out
}

func fromResult(name string, r model.ExtractedFieldResult) update {
	c := r.Confidence
	return update{field: name, value: r.Value, confidence: &c, source: r.Source}
}

// apply folds updates into p in field-name order. Manually edited fields and
// empty values are skipped; every other update overwrites the current value,
// whichever document it came from.
func apply(p *model.ClientProfile, documentID string, updates []update, now time.Time) Summary {
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	if p.FieldSources == nil {
		p.FieldSources = map[string]model.FieldSource{}
	}

	sort.Slice(updates, func(i, j int) bool { return updates[i].field < updates[j].field })

	var sum Summary
	for _, u := range updates {
		if p.IsProtected(u.field) {
			sum.SkippedProtected = append(sum.SkippedProtected, u.field)
			continue
		}
		if model.IsEmptyValue(u.value) {
			sum.SkippedEmpty = append(sum.SkippedEmpty, u.field)
			continue
		}
		p.Data[u.field] = u.value
		p.FieldSources[u.field] = model.FieldSource{
			DocumentID:     documentID,
			ExtractedAt:    now,
			ManuallyEdited: false,
			Confidence:     u.confidence,
			Source:         u.source,
		}
		sum.Updated = append(sum.Updated, u.field)
	}
	return sum
}
