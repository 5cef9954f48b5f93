package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/scanner"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// scanItem is one unit of CLI scan output.
type scanItem struct {
	Files    []string                 `json:"files"`
	Result   *scanner.ScanResult      `json:"result,omitempty"`
	Analysis *model.EquipmentAnalysis `json:"analysis,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

var scanCmd = &cobra.Command{
	Use:   "scan <image|dir>...",
	Short: "Read equipment nameplates",
	Long: "Scans each label photo separately, concurrently up to batch.max_concurrent_scans. " +
		"Directories expand to the images they contain. With --together all photos form one multi-angle scan.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, _ := cmd.Flags().GetString("format")
		persist, _ := cmd.Flags().GetBool("persist")
		together, _ := cmd.Flags().GetBool("together")
		location, _ := cmd.Flags().GetString("location")

		groups, err := imageGroups(args, together)
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, "scan", persist)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := scanner.ScanOptions{Persist: persist, Location: location}
		items := runScans(ctx, groups, cfg.Batch.MaxConcurrentScans, func(ctx context.Context, images []scanner.Image) (scanItem, error) {
			res, err := env.Scanner.ScanLabel(ctx, images, opts)
			return scanItem{Result: res}, err
		})
		if err := writeOutput(cmd.OutOrStdout(), format, items); err != nil {
			return err
		}
		return failedScans(items)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image|dir>...",
	Short: "Assess equipment condition from photos",
	Long:  "Sends all photos as one equipment analysis unless --separate is set.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, _ := cmd.Flags().GetString("format")
		separate, _ := cmd.Flags().GetBool("separate")

		groups, err := imageGroups(args, !separate)
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, "scan", false)
		if err != nil {
			return err
		}
		defer env.Close()

		items := runScans(ctx, groups, cfg.Batch.MaxConcurrentScans, func(ctx context.Context, images []scanner.Image) (scanItem, error) {
			a, err := env.Scanner.AnalyzeEquipment(ctx, images)
			return scanItem{Analysis: a}, err
		})
		if err := writeOutput(cmd.OutOrStdout(), format, items); err != nil {
			return err
		}
		return failedScans(items)
	},
}

// imageGroups expands args into image paths, one group per file or a
// single group when together is set.
func imageGroups(args []string, together bool) ([][]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "scan: %s", arg)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "scan: read dir %s", arg)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, eris.New("scan: no images found")
	}
	if together {
		return [][]string{paths}, nil
	}
	groups := make([][]string, len(paths))
	for i, p := range paths {
		groups[i] = []string{p}
	}
	return groups, nil
}

func loadImages(paths []string) ([]scanner.Image, error) {
	images := make([]scanner.Image, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "scan: read %s", p)
		}
		img, err := scanner.NewImage(filepath.Base(p), data, cfg.Scanner.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

type scanFunc func(ctx context.Context, images []scanner.Image) (scanItem, error)

// runScans runs fn over every group with at most concurrency in flight.
// A failed group is recorded in its item and does not stop the others.
func runScans(ctx context.Context, groups [][]string, concurrency int, fn scanFunc) []scanItem {
	if concurrency < 1 {
		concurrency = 1
	}
	items := make([]scanItem, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	for i, files := range groups {
		g.Go(func() error {
			log := zap.L().With(zap.Strings("files", files))

			item, err := func() (scanItem, error) {
				images, err := loadImages(files)
				if err != nil {
					return scanItem{}, err
				}
				return fn(gctx, images)
			}()
			item.Files = files
			if err != nil {
				failed.Add(1)
				item.Error = err.Error()
				log.Error("scan failed", zap.Error(err))
			} else {
				succeeded.Add(1)
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("scan batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return items
}

func failedScans(items []scanItem) error {
	n := 0
	for _, it := range items {
		if it.Error != "" {
			n++
		}
	}
	if n > 0 {
		return eris.Errorf("%d of %d scans failed", n, len(items))
	}
	return nil
}

func init() {
	scanCmd.Flags().String("format", "json", "output format: json or yaml")
	scanCmd.Flags().Bool("persist", false, "save scanned equipment (low-confidence scans are held back)")
	scanCmd.Flags().Bool("together", false, "treat all photos as one multi-angle scan")
	scanCmd.Flags().String("location", "", "location recorded on persisted equipment")

	analyzeCmd.Flags().String("format", "json", "output format: json or yaml")
	analyzeCmd.Flags().Bool("separate", false, "analyze each photo on its own")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(analyzeCmd)
}
