package fill

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/docfill/internal/model"
)

// XLSXForm fills a spreadsheet. Each field is written to its Cell
// ("Sheet!B2") or, when Cell is empty, to the workbook defined name equal
// to the field name.
type XLSXForm struct {
	file   *excelize.File
	schema *model.FormSchema
	names  map[string]string
}

// OpenXLSXForm opens an .xlsx template.
func OpenXLSXForm(path string, schema *model.FormSchema) (*XLSXForm, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fill: open template %s", path)
	}
	return newXLSXForm(f, schema), nil
}

// NewXLSXForm creates a blank workbook with one row per field: the label in
// column A and the value in column B. Fields that already carry a Cell keep
// it. The caller's schema is not modified.
func NewXLSXForm(schema *model.FormSchema) (*XLSXForm, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	fields := make([]model.FormField, len(schema.Fields))
	copy(fields, schema.Fields)
	for i := range fields {
		field := &fields[i]
		labelCell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, eris.Wrap(err, "fill: layout workbook")
		}
		label := field.Label
		if label == "" {
			label = field.Name
		}
		if err := f.SetCellValue(sheet, labelCell, label); err != nil {
			return nil, eris.Wrapf(err, "fill: write label for %s", field.Name)
		}

		if field.Cell == "" {
			valueCell, err := excelize.CoordinatesToCellName(2, i+1)
			if err != nil {
				return nil, eris.Wrap(err, "fill: layout workbook")
			}
			field.Cell = sheet + "!" + valueCell
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		return nil, eris.Wrap(err, "fill: layout workbook")
	}
	if err := f.SetColWidth(sheet, "B", "B", 40); err != nil {
		return nil, eris.Wrap(err, "fill: layout workbook")
	}

	return newXLSXForm(f, model.NewFormSchema(schema.Name, fields)), nil
}

func newXLSXForm(f *excelize.File, schema *model.FormSchema) *XLSXForm {
	names := make(map[string]string)
	for _, dn := range f.GetDefinedName() {
		names[dn.Name] = dn.RefersTo
	}
	return &XLSXForm{file: f, schema: schema, names: names}
}

// Schema implements Form.
func (x *XLSXForm) Schema() []model.FormField {
	return x.schema.Fields
}

// SetField implements Form.
func (x *XLSXForm) SetField(name string, value any) error {
	field := x.schema.ByName(name)
	if field == nil {
		return eris.Wrapf(ErrUnknownField, "set %s", name)
	}

	ref := field.Cell
	if ref == "" {
		ref = x.names[name]
	}
	sheet, cell, err := x.resolve(ref)
	if err != nil {
		return eris.Wrapf(err, "set %s", name)
	}

	v, err := coerce(*field, value)
	if err != nil {
		return eris.Wrapf(err, "set %s", name)
	}
	if err := x.file.SetCellValue(sheet, cell, v); err != nil {
		return eris.Wrapf(err, "set %s at %s!%s", name, sheet, cell)
	}
	return nil
}

// resolve splits "Sheet!$B$2" (optionally prefixed with '=') into a sheet
// and a cell. A bare cell refers to the first sheet.
func (x *XLSXForm) resolve(ref string) (string, string, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "=")
	if ref == "" {
		return "", "", eris.New("no cell or defined name for field")
	}

	sheet := x.file.GetSheetName(0)
	cell := ref
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		sheet = strings.Trim(ref[:i], "'")
		cell = ref[i+1:]
	}
	cell = strings.ReplaceAll(cell, "$", "")

	if idx, _ := x.file.GetSheetIndex(sheet); idx == -1 {
		return "", "", eris.Errorf("sheet %q not found", sheet)
	}
	if _, _, err := excelize.CellNameToCoordinates(cell); err != nil {
		return "", "", eris.Errorf("invalid cell %q", cell)
	}
	return sheet, cell, nil
}

// Cell returns the current text of a field's cell.
func (x *XLSXForm) Cell(name string) (string, error) {
	field := x.schema.ByName(name)
	if field == nil {
		return "", eris.Wrapf(ErrUnknownField, "get %s", name)
	}
	ref := field.Cell
	if ref == "" {
		ref = x.names[name]
	}
	sheet, cell, err := x.resolve(ref)
	if err != nil {
		return "", err
	}
	return x.file.GetCellValue(sheet, cell)
}

// SaveAs writes the workbook to path.
func (x *XLSXForm) SaveAs(path string) error {
	if err := x.file.SaveAs(path); err != nil {
		return eris.Wrapf(err, "fill: save %s", path)
	}
	return nil
}

// Close releases the workbook.
func (x *XLSXForm) Close() error {
	return x.file.Close()
}
