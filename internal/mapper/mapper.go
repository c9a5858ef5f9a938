// Package mapper decides which source field fills each field of a target
// form.
package mapper

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/docfill/internal/model"
)

// DefaultThreshold is the minimum score a candidate needs to be mapped.
const DefaultThreshold = 0.7

// DefaultMaxSuggestions caps the ranked candidates kept per form field.
const DefaultMaxSuggestions = 5

const scoreEpsilon = 1e-9

// Mapper produces one mapping per form field from a set of candidates.
// It is safe for concurrent use.
type Mapper struct {
	threshold      float64
	scorer         Scorer
	maxSuggestions int
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithThreshold sets the acceptance threshold. Values outside (0, 1] are
// ignored.
func WithThreshold(t float64) Option {
	return func(m *Mapper) {
		if t > 0 && t <= 1 {
			m.threshold = t
		}
	}
}

// WithScorer replaces DefaultScorer.
func WithScorer(s Scorer) Option {
	return func(m *Mapper) {
		if s != nil {
			m.scorer = s
		}
	}
}

// WithMaxSuggestions sets how many ranked candidates each mapping keeps.
// Zero disables suggestions; negative values are ignored.
func WithMaxSuggestions(n int) Option {
	return func(m *Mapper) {
		if n >= 0 {
			m.maxSuggestions = n
		}
	}
}

// New creates a Mapper.
func New(opts ...Option) *Mapper {
	m := &Mapper{threshold: DefaultThreshold, scorer: DefaultScorer, maxSuggestions: DefaultMaxSuggestions}
	for _, o := range opts {
		o(m)
	}
	return m
}

// MapFields maps one document's extraction record onto formFields.
func (m *Mapper) MapFields(data model.DocumentData, formFields []model.FormField) model.MappingResult {
	return m.Map(CandidatesFromDocument("", data), formFields, nil)
}

// Map picks the best candidate for every form field. Pinned mappings with
// ManualOverride set are returned untouched in place of a scored mapping;
// pins for fields not in formFields are ignored. The result has exactly
// one mapping per distinct form field name, in schema order, and does not
// depend on the order of candidates.
func (m *Mapper) Map(candidates []Candidate, formFields []model.FormField, pinned []model.FieldMapping) model.MappingResult {
	pins := make(map[string]model.FieldMapping, len(pinned))
	for _, p := range pinned {
		if p.ManualOverride {
			pins[p.FormField] = p
		}
	}

	res := model.MappingResult{
		Mappings:           make([]model.FieldMapping, 0, len(formFields)),
		UnmappedFormFields: make([]string, 0),
	}
	seen := make(map[string]bool, len(formFields))

	for _, ff := range formFields {
		if seen[ff.Name] {
			continue
		}
		seen[ff.Name] = true

		fm, ok := pins[ff.Name]
		if !ok {
			fm = m.best(ff, candidates)
		}
		if !fm.Mapped() {
			fm.Confidence = 0
			res.UnmappedFormFields = append(res.UnmappedFormFields, ff.Name)
		}
		res.Mappings = append(res.Mappings, fm)
	}

	zap.L().Debug("mapper: mapped form fields",
		zap.Int("form_fields", len(res.Mappings)),
		zap.Int("candidates", len(candidates)),
		zap.Int("pinned", len(pins)),
		zap.Int("unmapped", len(res.UnmappedFormFields)),
	)
	return res
}

type scored struct {
	c *Candidate
	s Score
}

// best scores every candidate against ff. Candidates scoring zero are
// dropped; the rest are ranked and the top one is mapped when it clears the
// threshold. Below-threshold candidates still appear as suggestions.
func (m *Mapper) best(ff model.FormField, candidates []Candidate) model.FieldMapping {
	ranked := make([]scored, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if s := m.scorer(ff, *c); s.Value > 0 {
			ranked = append(ranked, scored{c: c, s: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return beats(ranked[i].s, ranked[i].c, ranked[j].s, ranked[j].c)
	})

	fm := model.FieldMapping{FormField: ff.Name, Strategy: model.StrategyNone}
	if n := min(len(ranked), m.maxSuggestions); n > 0 {
		fm.Suggestions = make([]model.Suggestion, n)
		for i, r := range ranked[:n] {
			fm.Suggestions[i] = model.Suggestion{
				DocumentField: r.c.Name,
				DocumentID:    r.c.DocumentID,
				Score:         math.Round(r.s.Value*1000) / 1000,
				Confidence:    mappingConfidence(r.s.Value, r.c.Result.Confidence),
				Strategy:      r.s.Strategy,
			}
		}
	}

	if len(ranked) == 0 || ranked[0].s.Value < m.threshold-scoreEpsilon {
		return fm
	}
	win := ranked[0]
	name := win.c.Name
	fm.DocumentField = &name
	fm.Confidence = mappingConfidence(win.s.Value, win.c.Result.Confidence)
	fm.Strategy = win.s.Strategy
	return fm
}

// beats reports whether candidate a with score sa should replace b.
func beats(sa Score, a *Candidate, sb Score, b *Candidate) bool {
	if math.Abs(sa.Value-sb.Value) > scoreEpsilon {
		return sa.Value > sb.Value
	}
	if a.Result.Confidence != b.Result.Confidence {
		return a.Result.Confidence > b.Result.Confidence
	}
	if a.DocumentID != b.DocumentID {
		// Empty document ids sort last.
		if a.DocumentID == "" || b.DocumentID == "" {
			return b.DocumentID == ""
		}
		return a.DocumentID < b.DocumentID
	}
	return a.Name < b.Name
}

func mappingConfidence(score, extraction float64) float64 {
	extraction = math.Max(0, math.Min(100, extraction))
	return round1(100 * score * (0.7 + 0.3*extraction/100))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// OverallConfidence is the mean confidence of the mapped entries, or nil
// when nothing is mapped.
func OverallConfidence(mappings []model.FieldMapping) *float64 {
	var (
		sum float64
		n   int
	)
	for _, fm := range mappings {
		if !fm.Mapped() {
			continue
		}
		sum += fm.Confidence
		n++
	}
	if n == 0 {
		return nil
	}
	avg := round1(sum / float64(n))
	return &avg
}
