package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

// WriteReportMarkdown renders a printable inspection report. equipment may
// be nil.
func WriteReportMarkdown(out io.Writer, report *model.InspectionReport, equipment *model.EquipmentRecord) error {
	w := bufio.NewWriter(out)

	title := "HVAC Inspection Report"
	if equipment != nil {
		title += ": " + equipment.Label()
	}
	fmt.Fprintf(w, "# %s\n\n", mdEscape(title))

	for _, kv := range summaryRows(report, equipment) {
		if strings.HasPrefix(kv[0], "Recommendation ") {
			continue
		}
		fmt.Fprintf(w, "- **%s:** %s\n", kv[0], mdEscape(kv[1]))
	}
	w.WriteString("\n")

	if equipment != nil {
		writeEquipmentSection(w, equipment)
	}
	if report.Analysis != nil {
		writeAnalysisSection(w, report.Analysis)
	}
	if report.LabelScan != nil && report.LabelScan.RawText != "" {
		w.WriteString("## Label Text\n\n```\n")
		w.WriteString(strings.TrimSpace(report.LabelScan.RawText))
		w.WriteString("\n```\n\n")
	}

	labels, bodies := len(report.LabelImages), len(report.EquipmentImages)
	if labels+bodies > 0 {
		fmt.Fprintf(w, "## Photos\n\n%d label photo(s), %d equipment photo(s).\n\n", labels, bodies)
		for _, kind := range []model.ImageKind{model.ImageKindLabel, model.ImageKindEquipment} {
			for i, ref := range report.Images(kind) {
				fmt.Fprintf(w, "- [%s %d](%s) captured %s\n", Humanize(string(kind)), i+1, ref.URL, formatTime(ref.CapturedAt))
			}
		}
		w.WriteString("\n")
	}

	return eris.Wrap(w.Flush(), "export: write markdown")
}

func writeEquipmentSection(w *bufio.Writer, rec *model.EquipmentRecord) {
	w.WriteString("## Equipment\n\n| Field | Value | Source |\n|---|---|---|\n")
	for _, k := range model.LabelFieldKeys {
		v := fieldValue(rec, k)
		if v == "" {
			continue
		}
		source := ""
		if p, ok := rec.FieldMetadata[k]; ok {
			source = provenanceText(p)
			if p.InferenceBasis != "" {
				source += ": " + p.InferenceBasis
			}
		}
		fmt.Fprintf(w, "| %s | %s | %s |\n", FieldTitle(k), mdEscape(v), mdEscape(source))
	}
	if rec.Notes != "" {
		fmt.Fprintf(w, "\n%s\n", mdEscape(rec.Notes))
	}
	w.WriteString("\n")
}

func writeAnalysisSection(w *bufio.Writer, a *model.EquipmentAnalysis) {
	w.WriteString("## Condition\n\n")
	if a.EquipmentDescription != "" {
		fmt.Fprintf(w, "%s\n\n", mdEscape(a.EquipmentDescription))
	}

	condition, urgency := "Not reported", "Not reported"
	if a.Condition != nil {
		condition = Humanize(string(*a.Condition))
	}
	if a.Urgency != nil {
		urgency = Humanize(string(*a.Urgency))
	}
	fmt.Fprintf(w, "Overall condition: **%s**. Maintenance urgency: **%s**.\n\n", condition, urgency)

	if len(a.Failures) == 0 {
		w.WriteString("No failures detected.\n\n")
	} else {
		w.WriteString("### Findings\n\n")
		for i, f := range a.Failures {
			fmt.Fprintf(w, "%d. **%s** (%s, %s confidence): %s", i+1,
				Humanize(string(f.Type)), Humanize(string(f.Severity)), percent(f.Confidence), mdEscape(f.Description))
			if f.Location != "" {
				fmt.Fprintf(w, " Location: %s.", mdEscape(f.Location))
			}
			w.WriteString("\n")
			for _, r := range f.Recommendations {
				fmt.Fprintf(w, "   - %s\n", mdEscape(r))
			}
		}
		w.WriteString("\n")
	}

	if len(a.Recommendations) > 0 {
		w.WriteString("### Recommendations\n\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(w, "- %s\n", mdEscape(r))
		}
		w.WriteString("\n")
	}
}

var mdReplacer = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

// mdEscape keeps model-provided text from breaking table rows.
func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
