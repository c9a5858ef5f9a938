package mapper

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"github.com/sells-group/docfill/internal/model"
)

// Score is a candidate's fitness for one form field.
type Score struct {
	Value    float64
	Strategy model.MappingStrategy
}

// Scorer rates how well a candidate fills a form field. Values are in
// [0, 1]; zero means no match.
type Scorer func(form model.FormField, c Candidate) Score

// Tier scores used by DefaultScorer.
const (
	scoreExact      = 1.0
	scoreNormalized = 0.95
	scoreConcept    = 0.9
	containBase     = 0.5
	containSpan     = 0.3
	fuzzyMin        = 0.8
	fuzzyWeight     = 0.9
	typeBonus       = 0.05
	maxBoosted      = 0.99
	typePenalty     = 0.85
)

var typeOnlyScores = map[string]float64{
	model.FieldTypeEmail: 0.8,
	model.FieldTypeURL:   0.8,
	model.FieldTypeTel:   0.75,
	model.FieldTypeDate:  0.72,
}

// DefaultScorer matches on names first and falls back to the shape of the
// value when the form field declares a strict type.
func DefaultScorer(form model.FormField, c Candidate) Score {
	s := nameScore(form.Name, c.Name)
	if form.Label != "" && form.Label != form.Name {
		if ls := nameScore(form.Label, c.Name); ls.Value > s.Value {
			// A label never counts as an exact hit on the field itself.
			if ls.Strategy == model.StrategyExact {
				ls = Score{Value: scoreNormalized, Strategy: model.StrategyAlias}
			}
			s = ls
		}
	}

	typ := form.NormalizedType()
	matches, strict := valueMatchesType(typ, c.Result.Value)
	if !strict {
		return s
	}

	if s.Value > 0 {
		if matches && s.Value < maxBoosted {
			s.Value = math.Min(s.Value+typeBonus, maxBoosted)
		}
		if !matches {
			s.Value *= typePenalty
		}
	}
	if matches {
		if ts, ok := typeOnlyScores[typ]; ok && ts > s.Value {
			return Score{Value: ts, Strategy: model.StrategyType}
		}
	}
	return s
}

// nameScore returns the best name-based tier for a pair of field names.
func nameScore(formName, candName string) Score {
	if formName == candName && formName != "" {
		return Score{Value: scoreExact, Strategy: model.StrategyExact}
	}

	ft, ct := tokenize(formName), tokenize(candName)
	if len(ft) == 0 || len(ct) == 0 {
		return Score{Strategy: model.StrategyNone}
	}
	fk, ck := key(ft), key(ct)
	if fk == ck {
		return Score{Value: scoreNormalized, Strategy: model.StrategyAlias}
	}

	best := Score{Strategy: model.StrategyNone}
	if c := conceptOf(fk); c != "" && c == conceptOf(ck) {
		best = Score{Value: scoreConcept, Strategy: model.StrategyAlias}
	}
	// address1 and address2 are different fields, however close the spelling.
	if numberedApart(ft, ct) {
		return best
	}

	if cov := containment(expand(ft), expand(ct)); cov > 0 {
		if v := containBase + containSpan*cov; v > best.Value {
			best = Score{Value: v, Strategy: model.StrategyAlias}
		}
	}

	if sim := levenshtein.Similarity(fk, ck, nil); sim >= fuzzyMin {
		if v := fuzzyWeight * sim; v > best.Value {
			best = Score{Value: v, Strategy: model.StrategyFuzzy}
		}
	}
	return best
}

// numberedApart reports whether both names carry numeric tokens and those
// tokens differ.
func numberedApart(a, b []string) bool {
	na, nb := numericTokens(a), numericTokens(b)
	if len(na) == 0 || len(nb) == 0 {
		return false
	}
	return strings.Join(na, ",") != strings.Join(nb, ",")
}

func numericTokens(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if t != "" && strings.IndexFunc(t, func(r rune) bool { return r < '0' || r > '9' }) < 0 {
			out = append(out, strings.TrimLeft(t, "0"))
		}
	}
	return out
}

// containment returns the share of the longer token list covered when every
// token of the shorter one appears in it, or 0.
func containment(a, b []string) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	set := make(map[string]bool, len(long))
	for _, t := range long {
		set[t] = true
	}
	for _, t := range short {
		if !set[t] {
			return 0
		}
	}
	return float64(len(short)) / float64(len(long))
}

var (
	emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9\s().\-]+$`)
)

// valueMatchesType reports whether v looks like a value of the form type.
// strict is false for types with no recognizable shape (text, checkbox).
func valueMatchesType(typ string, v any) (matches, strict bool) {
	switch typ {
	case model.FieldTypeEmail, model.FieldTypeTel, model.FieldTypeDate, model.FieldTypeURL, model.FieldTypeNumber:
	default:
		return false, false
	}

	if typ == model.FieldTypeNumber {
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true, true
		}
	}
	if typ == model.FieldTypeDate {
		if _, ok := v.(time.Time); ok {
			return true, true
		}
	}

	s, ok := v.(string)
	if !ok {
		return false, true
	}
	s = strings.TrimSpace(s)

	switch typ {
	case model.FieldTypeEmail:
		return emailRe.MatchString(s), true
	case model.FieldTypeTel:
		return looksLikePhone(s), true
	case model.FieldTypeDate:
		_, ok := model.ParseDate(s)
		return ok, true
	case model.FieldTypeURL:
		return looksLikeURL(s), true
	default:
		_, ok := model.ParseNumber(s)
		return ok, true
	}
}

// looksLikePhone accepts 10 to 12 digits: national numbers with an area
// code, optionally with a country prefix. Nine-digit SSNs fall outside it.
func looksLikePhone(s string) bool {
	if !phoneRe.MatchString(s) {
		return false
	}
	digits := model.CountDigits(s)
	return digits >= 10 && digits <= 12
}

func looksLikeURL(s string) bool {
	if strings.HasPrefix(strings.ToLower(s), "www.") {
		return true
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
