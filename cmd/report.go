package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Create and process inspection reports",
}

// -- report create --

var reportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft report, optionally attaching photos",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		equipmentID, _ := cmd.Flags().GetString("equipment")
		labels, _ := cmd.Flags().GetStringSlice("label")
		photos, _ := cmd.Flags().GetStringSlice("photo")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if equipmentID != "" {
			if _, err := st.GetEquipment(ctx, equipmentID); err != nil {
				return eris.Wrap(err, "report create")
			}
		}
		report := &model.InspectionReport{EquipmentID: equipmentID}
		if err := st.CreateReport(ctx, report); err != nil {
			return eris.Wrap(err, "report create")
		}
		if err := attachFiles(cmd, st, report.ID, model.ImageKindLabel, labels); err != nil {
			return err
		}
		if err := attachFiles(cmd, st, report.ID, model.ImageKindEquipment, photos); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.ID)
		return nil
	},
}

// attachFiles stores the given photos on a draft report.
func attachFiles(cmd *cobra.Command, st store.Store, reportID string, kind model.ImageKind, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	images, err := loadImages(paths)
	if err != nil {
		return err
	}
	for _, img := range images {
		stored := &model.Image{ReportID: reportID, Kind: kind, ContentType: img.MediaType, Data: img.Data}
		if err := st.SaveImage(cmd.Context(), stored); err != nil {
			return eris.Wrapf(err, "attach %s", img.Name)
		}
	}
	return nil
}

// -- report process --

var reportProcessCmd = &cobra.Command{
	Use:   "process <report-id>",
	Short: "Run a draft report through the vision model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "process", true)
		if err != nil {
			return err
		}
		defer env.Close()

		report, procErr := env.Scanner.ProcessReport(ctx, args[0])
		format, _ := cmd.Flags().GetString("format")
		if report != nil {
			if err := writeOutput(cmd.OutOrStdout(), format, report); err != nil {
				return err
			}
		}
		return eris.Wrap(procErr, "report process")
	},
}

// -- report show --

var reportShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "report show")
		}
		format, _ := cmd.Flags().GetString("format")
		return writeOutput(cmd.OutOrStdout(), format, report)
	},
}

// -- report list --

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		equipmentID, _ := cmd.Flags().GetString("equipment")
		limit, _ := cmd.Flags().GetInt("limit")

		reports, err := st.ListReports(ctx, store.ReportFilter{
			EquipmentID: equipmentID,
			Status:      model.ReportStatus(status),
			Limit:       limit,
		})
		if err != nil {
			return eris.Wrap(err, "report list")
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}
		formatReportList(cmd.OutOrStdout(), reports)
		return nil
	},
}

func init() {
	reportCreateCmd.Flags().String("equipment", "", "link the report to an existing equipment record")
	reportCreateCmd.Flags().StringSlice("label", nil, "nameplate photo to attach (repeatable)")
	reportCreateCmd.Flags().StringSlice("photo", nil, "equipment photo to attach (repeatable)")

	reportProcessCmd.Flags().String("format", "json", "output format: json or yaml")
	reportShowCmd.Flags().String("format", "json", "output format: json or yaml")

	reportListCmd.Flags().String("status", "", "filter by status (draft, processing, completed, error)")
	reportListCmd.Flags().String("equipment", "", "filter by equipment id")
	reportListCmd.Flags().Int("limit", 50, "max number of reports to display")

	reportCmd.AddCommand(reportCreateCmd)
	reportCmd.AddCommand(reportProcessCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportListCmd)
	rootCmd.AddCommand(reportCmd)
}
