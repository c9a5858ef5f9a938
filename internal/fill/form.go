// Package fill writes mapped values into target forms and reports the
// outcome.
package fill

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docfill/internal/model"
)

// ErrUnknownField is returned when a form has no field with the given name.
var ErrUnknownField = errors.New("unknown form field")

// Form is a writable target document.
type Form interface {
	Schema() []model.FormField
	SetField(name string, value any) error
}

// coerce converts v into the representation a field of the given type
// stores. A value that cannot be represented is a write failure.
func coerce(f model.FormField, v any) (any, error) {
	if v == nil {
		return nil, eris.New("value is empty")
	}

	var out any
	switch f.NormalizedType() {
	case model.FieldTypeEmail:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		addr, err := mail.ParseAddress(s)
		if err != nil {
			return nil, eris.Errorf("not an email address: %q", s)
		}
		out = addr.Address

	case model.FieldTypeTel:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		if model.CountDigits(s) < 7 {
			return nil, eris.Errorf("not a phone number: %q", s)
		}
		out = strings.TrimSpace(s)

	case model.FieldTypeNumber:
		n, err := asNumber(v)
		if err != nil {
			return nil, err
		}
		out = n

	case model.FieldTypeCheckbox:
		switch b := v.(type) {
		case bool:
			out = b
		case string:
			parsed, ok := model.ParseBool(b)
			if !ok {
				return nil, eris.Errorf("not a checkbox value: %q", b)
			}
			out = parsed
		default:
			return nil, eris.Errorf("not a checkbox value: %v", v)
		}

	case model.FieldTypeDate:
		switch d := v.(type) {
		case time.Time:
			out = d.Format("2006-01-02")
		case string:
			t, ok := model.ParseDate(d)
			if !ok {
				return nil, eris.Errorf("not a date: %q", d)
			}
			out = t.Format("2006-01-02")
		default:
			return nil, eris.Errorf("not a date: %v", v)
		}

	default:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		out = s
	}

	if f.PatternRegex != nil {
		if s := fmt.Sprint(out); !f.PatternRegex.MatchString(s) {
			return nil, eris.Errorf("value %q does not match pattern %s", s, f.Pattern)
		}
	}
	return out, nil
}

func asString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", eris.Errorf("unsupported value type %T", v)
}

func asNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		if n, ok := model.ParseNumber(t); ok {
			return n, nil
		}
		return 0, eris.Errorf("not a number: %q", t)
	}
	return 0, eris.Errorf("not a number: %v", v)
}

// MemoryForm is an in-memory form. Its values are the JSON fill output.
type MemoryForm struct {
	schema *model.FormSchema
	values map[string]any
}

// NewMemoryForm creates an empty form for schema.
func NewMemoryForm(schema *model.FormSchema) *MemoryForm {
	return &MemoryForm{schema: schema, values: make(map[string]any)}
}

// Schema implements Form.
func (f *MemoryForm) Schema() []model.FormField {
	return f.schema.Fields
}

// SetField implements Form.
func (f *MemoryForm) SetField(name string, value any) error {
	field := f.schema.ByName(name)
	if field == nil {
		return eris.Wrapf(ErrUnknownField, "set %s", name)
	}
	v, err := coerce(*field, value)
	if err != nil {
		return eris.Wrapf(err, "set %s", name)
	}
	f.values[name] = v
	return nil
}

// Values returns a copy of the written values.
func (f *MemoryForm) Values() map[string]any {
	out := make(map[string]any, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}
