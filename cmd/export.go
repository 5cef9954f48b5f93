package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/xMathyu/hvac-scanner/internal/export"
	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/store"
)

const exportPageSize = 500

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export equipment inventory or inspection reports",
}

var exportEquipmentCmd = &cobra.Command{
	Use:   "equipment",
	Short: "Write the equipment inventory as an Excel workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("output")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := listAllEquipment(ctx, st)
		if err != nil {
			return err
		}
		return writeFile(out, func(w io.Writer) error {
			return export.WriteEquipmentXLSX(w, records)
		})
	},
}

var exportReportCmd = &cobra.Command{
	Use:   "report <report-id>",
	Short: "Write an inspection report as Excel or Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("output")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export report")
		}
		var equipment *model.EquipmentRecord
		if report.EquipmentID != "" {
			equipment, err = st.GetEquipment(ctx, report.EquipmentID)
			if err != nil && !store.IsNotFound(err) {
				return eris.Wrap(err, "export report: equipment")
			}
		}

		switch format {
		case "xlsx":
			return writeFile(out, func(w io.Writer) error {
				return export.WriteReportXLSX(w, report, equipment)
			})
		case "md", "markdown":
			return writeFile(out, func(w io.Writer) error {
				return export.WriteReportMarkdown(w, report, equipment)
			})
		default:
			return eris.Errorf("unknown export format %q (want xlsx or md)", format)
		}
	},
}

func listAllEquipment(ctx context.Context, st store.Store) ([]model.EquipmentRecord, error) {
	var out []model.EquipmentRecord
	for offset := 0; ; offset += exportPageSize {
		page, err := st.ListEquipment(ctx, store.EquipmentFilter{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "export equipment")
		}
		out = append(out, page...)
		if len(page) < exportPageSize {
			return out, nil
		}
	}
}

// writeFile writes to path, or stdout when path is "-".
func writeFile(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

func init() {
	exportEquipmentCmd.Flags().StringP("output", "o", "equipment.xlsx", "output file, - for stdout")
	exportReportCmd.Flags().String("format", "md", "xlsx or md")
	exportReportCmd.Flags().StringP("output", "o", "-", "output file, - for stdout")

	exportCmd.AddCommand(exportEquipmentCmd)
	exportCmd.AddCommand(exportReportCmd)
	rootCmd.AddCommand(exportCmd)
}
