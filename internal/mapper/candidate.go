package mapper

import (
	"sort"

	"github.com/sells-group/docfill/internal/model"
)

// ManualEditConfidence is the extraction confidence given to profile values
// a human has corrected.
const ManualEditConfidence = 100

// Candidate is a source field that may fill a form field.
type Candidate struct {
	Name       string
	Result     model.ExtractedFieldResult
	DocumentID string
}

// CandidatesFromDocument turns one document's extraction record into
// candidates, sorted by name. Empty values are not candidates.
func CandidatesFromDocument(documentID string, data model.DocumentData) []Candidate {
	out := make([]Candidate, 0, len(data))
	for name, fv := range data {
		r := fv.Normalize()
		if model.IsEmptyValue(r.Value) {
			continue
		}
		out = append(out, Candidate{Name: name, Result: r, DocumentID: documentID})
	}
	sortCandidates(out)
	return out
}

// CandidatesFromProfile turns a client profile into candidates carrying the
// provenance recorded for each field.
func CandidatesFromProfile(p *model.ClientProfile) []Candidate {
	if p == nil {
		return nil
	}
	out := make([]Candidate, 0, len(p.Data))
	for name, v := range p.Data {
		if model.IsEmptyValue(v) {
			continue
		}
		src := p.FieldSources[name]
		r := model.ExtractedFieldResult{Value: v, Source: src.Source}
		if s, ok := v.(string); ok {
			r.RawText = s
		}
		switch {
		case src.ManuallyEdited:
			r.Confidence = ManualEditConfidence
			r.Source = ""
		case src.Confidence != nil:
			r.Confidence = *src.Confidence
		}
		out = append(out, Candidate{Name: name, Result: r, DocumentID: src.DocumentID})
	}
	sortCandidates(out)
	return out
}

func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}
		return cs[i].DocumentID < cs[j].DocumentID
	})
}
