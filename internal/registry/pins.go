package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/docfill/internal/model"
)

// PinnedConfidence is given to a pin that names a source but no confidence.
const PinnedConfidence = 100

type pinsFile struct {
	Pins []model.FieldMapping `yaml:"pins"`
}

// LoadPins reads reviewer-confirmed mappings. The file holds either a
// top-level list or a "pins" key.
func LoadPins(path string) ([]model.FieldMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read pins %s", path)
	}
	pins, err := ParsePins(data)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: load %s", path)
	}
	return pins, nil
}

// ParsePins decodes a pins document.
func ParsePins(data []byte) ([]model.FieldMapping, error) {
	var list []model.FieldMapping
	if err := yaml.Unmarshal(data, &list); err != nil {
		var f pinsFile
		if err2 := yaml.Unmarshal(data, &f); err2 != nil {
			return nil, eris.Wrap(err2, "registry: parse pins")
		}
		list = f.Pins
	}
	return NormalizePins(list)
}

// NormalizePins marks every entry as a manual override. A pin with no
// source field pins the form field as unmapped.
func NormalizePins(pins []model.FieldMapping) ([]model.FieldMapping, error) {
	seen := make(map[string]bool, len(pins))
	out := make([]model.FieldMapping, 0, len(pins))
	for i, p := range pins {
		p.FormField = strings.TrimSpace(p.FormField)
		if p.FormField == "" {
			return nil, eris.Errorf("registry: pin %d has no formField", i+1)
		}
		if seen[p.FormField] {
			return nil, eris.Errorf("registry: duplicate pin for %q", p.FormField)
		}
		seen[p.FormField] = true

		p.ManualOverride = true
		p.Strategy = model.StrategyManual
		switch {
		case p.DocumentField == nil || strings.TrimSpace(*p.DocumentField) == "":
			p.DocumentField = nil
			p.Confidence = 0
		case p.Confidence == 0:
			p.Confidence = PinnedConfidence
		}
		out = append(out, p)
	}
	return out, nil
}
