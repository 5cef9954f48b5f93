package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

// Sheet names.
const (
	SheetEquipment  = "Equipment"
	SheetProvenance = "Provenance"
	SheetSummary    = "Summary"
	SheetFindings   = "Findings"
	SheetImages     = "Images"
)

// inventoryHeader is the Equipment sheet layout; ReadEquipmentXLSX accepts
// the same headings.
var inventoryHeader = append(append([]string{"ID"}, fieldHeadings()...), "Location", "Notes", "Created", "Updated")

func fieldHeadings() []string {
	out := make([]string, len(model.LabelFieldKeys))
	for i, k := range model.LabelFieldKeys {
		out[i] = FieldTitle(k)
	}
	return out
}

type workbook struct {
	file *xlsx.File
	bold *xlsx.Style
}

func newWorkbook() *workbook {
	bold := xlsx.NewStyle()
	bold.Font.Bold = true
	bold.ApplyFont = true
	return &workbook{file: xlsx.NewFile(), bold: bold}
}

func (w *workbook) sheet(name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := w.file.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "export: add sheet %s", name)
	}
	if len(header) > 0 {
		row := sheet.AddRow()
		for _, h := range header {
			cell := row.AddCell()
			cell.SetString(h)
			cell.SetStyle(w.bold)
		}
	}
	return sheet, nil
}

func (w *workbook) write(out io.Writer) error {
	return eris.Wrap(w.file.Write(out), "export: write workbook")
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// WriteEquipmentXLSX writes an inventory workbook: one row per record on
// the Equipment sheet and one row per field on the Provenance sheet.
func WriteEquipmentXLSX(out io.Writer, records []model.EquipmentRecord) error {
	wb := newWorkbook()

	inventory, err := wb.sheet(SheetEquipment, inventoryHeader)
	if err != nil {
		return err
	}
	provenance, err := wb.sheet(SheetProvenance, []string{"Equipment ID", "Field", "Source", "Confidence", "Inference Basis"})
	if err != nil {
		return err
	}

	for i := range records {
		rec := &records[i]
		values := []string{rec.ID}
		for _, k := range model.LabelFieldKeys {
			values = append(values, fieldValue(rec, k))
		}
		values = append(values, rec.Location, rec.Notes, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
		addRow(inventory, values...)

		for _, k := range sortedFields(rec.FieldMetadata) {
			p := rec.FieldMetadata[k]
			conf := ""
			if p.Confidence != nil {
				conf = percent(*p.Confidence)
			}
			addRow(provenance, rec.ID, FieldTitle(k), provenanceText(model.FieldProvenance{Source: p.Source}), conf, p.InferenceBasis)
		}
	}

	return wb.write(out)
}

// WriteReportXLSX writes one inspection report as a workbook with summary,
// equipment, findings and image sheets. equipment may be nil.
func WriteReportXLSX(out io.Writer, report *model.InspectionReport, equipment *model.EquipmentRecord) error {
	wb := newWorkbook()

	summary, err := wb.sheet(SheetSummary, nil)
	if err != nil {
		return err
	}
	for _, kv := range summaryRows(report, equipment) {
		row := summary.AddRow()
		key := row.AddCell()
		key.SetString(kv[0])
		key.SetStyle(wb.bold)
		row.AddCell().SetString(kv[1])
	}

	eq, err := wb.sheet(SheetEquipment, []string{"Field", "Value", "Source", "Inference Basis"})
	if err != nil {
		return err
	}
	for _, k := range model.LabelFieldKeys {
		v := fieldValue(equipment, k)
		if v == "" {
			continue
		}
		source, basis := "", ""
		if p, ok := equipment.FieldMetadata[k]; ok {
			source, basis = provenanceText(p), p.InferenceBasis
		}
		addRow(eq, FieldTitle(k), v, source, basis)
	}

	findings, err := wb.sheet(SheetFindings, []string{"ID", "Type", "Severity", "Description", "Location", "Confidence", "Recommendations"})
	if err != nil {
		return err
	}
	if report.Analysis != nil {
		for _, f := range report.Analysis.Failures {
			addRow(findings, f.ID, Humanize(string(f.Type)), Humanize(string(f.Severity)),
				f.Description, f.Location, percent(f.Confidence), strings.Join(f.Recommendations, "; "))
		}
	}

	images, err := wb.sheet(SheetImages, []string{"Kind", "ID", "Captured", "Bytes", "URL"})
	if err != nil {
		return err
	}
	for _, kind := range []model.ImageKind{model.ImageKindLabel, model.ImageKindEquipment} {
		for _, ref := range report.Images(kind) {
			addRow(images, Humanize(string(kind)), ref.ID, formatTime(ref.CapturedAt), fmt.Sprint(ref.Size), ref.URL)
		}
	}

	return wb.write(out)
}

// summaryRows lists the key facts of a report in display order.
func summaryRows(report *model.InspectionReport, equipment *model.EquipmentRecord) [][2]string {
	rows := [][2]string{
		{"Report", report.ID},
		{"Status", Humanize(string(report.Status))},
		{"Created", formatTime(report.CreatedAt)},
	}
	if report.CompletedAt != nil {
		rows = append(rows, [2]string{"Completed", formatTime(*report.CompletedAt)})
	}
	if report.Error != "" {
		rows = append(rows, [2]string{"Error", report.Error})
	}
	if equipment != nil {
		rows = append(rows, [2]string{"Equipment", equipment.Label()})
		if equipment.Location != "" {
			rows = append(rows, [2]string{"Location", equipment.Location})
		}
	}
	if report.LabelScan != nil {
		rows = append(rows, [2]string{"Label Scan Confidence", percent(report.LabelScan.Confidence)})
	}
	if a := report.Analysis; a != nil {
		if a.Condition != nil {
			rows = append(rows, [2]string{"Condition", Humanize(string(*a.Condition))})
		}
		if a.Urgency != nil {
			rows = append(rows, [2]string{"Urgency", Humanize(string(*a.Urgency))})
		}
		rows = append(rows, [2]string{"Findings", fmt.Sprint(len(a.Failures))})
		if worst := a.WorstSeverity(); worst != "" {
			rows = append(rows, [2]string{"Worst Severity", Humanize(string(worst))})
		}
		for i, r := range a.Recommendations {
			rows = append(rows, [2]string{fmt.Sprintf("Recommendation %d", i+1), r})
		}
	}
	return rows
}

func sortedFields(m map[string]model.FieldProvenance) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
