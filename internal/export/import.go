package export

import (
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

// RowError describes one spreadsheet row that could not be imported.
type RowError struct {
	Row int    `json:"row"` // 1-based, as shown in a spreadsheet
	Err string `json:"error"`
}

// ReadEquipmentXLSX reads equipment rows from the Equipment sheet (or the
// first sheet when there is none) of a workbook laid out like
// WriteEquipmentXLSX output. Columns are matched by heading, so any subset
// and order works. Every imported field is marked as manually entered.
// Rows that fail to parse are reported and skipped.
func ReadEquipmentXLSX(r io.ReaderAt, size int64) ([]model.EquipmentRecord, []RowError, error) {
	f, err := xlsx.OpenReaderAt(r, size)
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: open workbook")
	}

	sheet, err := inventorySheet(f)
	if err != nil {
		return nil, nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.New("export: equipment sheet is empty")
	}

	columns := headerColumns(rowToStrings(sheet.Rows[0]))
	if len(columns) == 0 {
		return nil, nil, eris.New("export: no recognized column headings")
	}

	var (
		records []model.EquipmentRecord
		skipped []RowError
	)
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		rec, err := parseRow(cells, columns)
		if err != nil {
			skipped = append(skipped, RowError{Row: i + 2, Err: err.Error()})
			continue
		}
		records = append(records, *rec)
	}
	return records, skipped, nil
}

func inventorySheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if sheet, ok := f.Sheet[SheetEquipment]; ok {
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("export: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

// column targets: a label field key, or one of these record attributes.
const (
	colLocation = "location"
	colNotes    = "notes"
)

// headerColumns maps column index to target. Headings match a field title
// or key case-insensitively; ID and timestamp columns are ignored.
func headerColumns(header []string) map[int]string {
	byName := make(map[string]string, 2*len(model.LabelFieldKeys)+2)
	for _, k := range model.LabelFieldKeys {
		byName[strings.ToLower(k)] = k
		byName[strings.ToLower(FieldTitle(k))] = k
	}
	byName[colLocation] = colLocation
	byName[colNotes] = colNotes

	out := make(map[int]string)
	for i, h := range header {
		if target, ok := byName[strings.ToLower(strings.TrimSpace(h))]; ok {
			out[i] = target
		}
	}
	return out
}

func parseRow(cells []string, columns map[int]string) (*model.EquipmentRecord, error) {
	rec := &model.EquipmentRecord{}
	var fields []string
	for i, target := range columns {
		if i >= len(cells) {
			continue
		}
		v := strings.TrimSpace(cells[i])
		if v == "" {
			continue
		}
		switch target {
		case colLocation:
			rec.Location = v
		case colNotes:
			rec.Notes = v
		default:
			if err := setField(rec, target, v); err != nil {
				return nil, err
			}
			fields = append(fields, target)
		}
	}
	if len(fields) == 0 {
		return nil, eris.New("no equipment fields")
	}
	rec.MarkManual(fields...)
	return rec, nil
}

// setField assigns a spreadsheet value to a label field.
func setField(rec *model.EquipmentRecord, key, v string) error {
	switch key {
	case model.FieldBTU:
		n, err := strconv.Atoi(strings.ReplaceAll(v, ",", ""))
		if err != nil {
			return eris.Errorf("%s: %q is not a whole number", FieldTitle(key), v)
		}
		rec.BTU = &n
	case model.FieldSEERRating, model.FieldEERRating:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return eris.Errorf("%s: %q is not a number", FieldTitle(key), v)
		}
		if key == model.FieldSEERRating {
			rec.SEERRating = &f
		} else {
			rec.EERRating = &f
		}
	case model.FieldEquipmentType:
		t := string(model.ParseEquipmentType(v))
		rec.EquipmentType = &t
	default:
		s := v
		switch key {
		case model.FieldBrand:
			rec.Brand = &s
		case model.FieldModel:
			rec.Model = &s
		case model.FieldSerialNumber:
			rec.SerialNumber = &s
		case model.FieldCapacity:
			rec.Capacity = &s
		case model.FieldManufactureDate:
			rec.ManufactureDate = &s
		case model.FieldVoltage:
			rec.Voltage = &s
		case model.FieldAmperage:
			rec.Amperage = &s
		case model.FieldRefrigerantType:
			rec.RefrigerantType = &s
		}
	}
	return nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
