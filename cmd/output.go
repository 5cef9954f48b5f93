package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/xMathyu/hvac-scanner/internal/export"
	"github.com/xMathyu/hvac-scanner/internal/model"
)

// writeOutput renders v as json or yaml. YAML goes through a JSON round
// trip so both formats share the camelCase field names.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json")
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	default:
		return eris.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatEquipmentList(w io.Writer, records []model.EquipmentRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBRAND\tMODEL\tSERIAL\tTYPE\tLOCATION\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			deref(r.Brand),
			deref(r.Model),
			deref(r.SerialNumber),
			export.Humanize(string(r.Category())),
			r.Location,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush() //nolint:errcheck
}

func formatReportList(w io.Writer, reports []model.InspectionReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tEQUIPMENT\tLABEL\tPHOTOS\tCREATED\tERROR")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			shortID(r.ID),
			r.Status,
			shortID(r.EquipmentID),
			len(r.LabelImages),
			len(r.EquipmentImages),
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Error,
		)
	}
	tw.Flush() //nolint:errcheck
}
