package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/xMathyu/hvac-scanner/internal/export"
	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/store"
)

var equipmentCmd = &cobra.Command{
	Use:   "equipment",
	Short: "Manage the equipment inventory",
}

// -- equipment list --

var equipmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List equipment records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		brand, _ := cmd.Flags().GetString("brand")
		typ, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.EquipmentFilter{Brand: brand, Limit: limit}
		if typ != "" {
			filter.EquipmentType = model.ParseEquipmentType(typ)
		}
		records, err := st.ListEquipment(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "equipment list")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No equipment found.")
			return nil
		}
		formatEquipmentList(cmd.OutOrStdout(), records)
		return nil
	},
}

// -- equipment show --

var equipmentShowCmd = &cobra.Command{
	Use:   "show <equipment-id>",
	Short: "Show a record with its field provenance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetEquipment(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "equipment show")
		}
		format, _ := cmd.Flags().GetString("format")
		return writeOutput(cmd.OutOrStdout(), format, rec)
	},
}

// -- equipment delete --

var equipmentDeleteCmd = &cobra.Command{
	Use:   "delete <equipment-id>",
	Short: "Delete a record; linked reports are kept and unlinked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteEquipment(ctx, args[0]); err != nil {
			return eris.Wrap(err, "equipment delete")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

// -- equipment import --

var equipmentImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import manually entered equipment from a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "equipment import: open")
		}
		defer f.Close() //nolint:errcheck
		info, err := f.Stat()
		if err != nil {
			return eris.Wrap(err, "equipment import: stat")
		}

		records, rowErrs, err := export.ReadEquipmentXLSX(f, info.Size())
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for i := range records {
			if err := st.CreateEquipment(ctx, &records[i]); err != nil {
				return eris.Wrapf(err, "equipment import: row %d", i+1)
			}
		}
		for _, re := range rowErrs {
			fmt.Fprintf(os.Stderr, "row %d skipped: %s\n", re.Row, re.Err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records (%d rows skipped)\n", len(records), len(rowErrs))
		return nil
	},
}

func init() {
	equipmentListCmd.Flags().String("brand", "", "filter by brand (case-insensitive)")
	equipmentListCmd.Flags().String("type", "", "filter by equipment type (air_conditioner, furnace, ...)")
	equipmentListCmd.Flags().Int("limit", 50, "max number of records to display")

	equipmentShowCmd.Flags().String("format", "json", "output format: json or yaml")

	equipmentCmd.AddCommand(equipmentListCmd)
	equipmentCmd.AddCommand(equipmentShowCmd)
	equipmentCmd.AddCommand(equipmentDeleteCmd)
	equipmentCmd.AddCommand(equipmentImportCmd)
	rootCmd.AddCommand(equipmentCmd)
}
