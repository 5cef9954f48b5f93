// Package export renders equipment inventories and inspection reports as
// Excel workbooks and printable Markdown, and imports inventories back
// from Excel.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

var titleCaser = cases.Title(language.English)

// Humanize turns an enum value such as "within_week" into "Within Week".
func Humanize(s string) string {
	if s == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// fieldTitles are the column headings for the label fields.
var fieldTitles = map[string]string{
	model.FieldBrand:           "Brand",
	model.FieldModel:           "Model",
	model.FieldSerialNumber:    "Serial Number",
	model.FieldCapacity:        "Capacity",
	model.FieldBTU:             "BTU",
	model.FieldManufactureDate: "Manufacture Date",
	model.FieldVoltage:         "Voltage",
	model.FieldAmperage:        "Amperage",
	model.FieldRefrigerantType: "Refrigerant",
	model.FieldSEERRating:      "SEER",
	model.FieldEERRating:       "EER",
	model.FieldEquipmentType:   "Equipment Type",
}

// FieldTitle returns the display heading for a label field key.
func FieldTitle(key string) string {
	if t, ok := fieldTitles[key]; ok {
		return t
	}
	return key
}

// fieldValue formats a label field of rec, or "" when unset.
func fieldValue(rec *model.EquipmentRecord, key string) string {
	if rec == nil {
		return ""
	}
	v, ok := rec.StructuredData()[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		if key == model.FieldEquipmentType {
			return Humanize(string(model.ParseEquipmentType(val)))
		}
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// provenanceText formats a field's provenance, e.g. "Scanned (90%)".
func provenanceText(p model.FieldProvenance) string {
	s := Humanize(string(p.Source))
	if p.Source == model.SourceAIInferred {
		s = "AI Inferred"
	}
	if p.Confidence != nil {
		s += fmt.Sprintf(" (%.0f%%)", *p.Confidence*100)
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

func percent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}
