package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xMathyu/hvac-scanner/internal/config"
	"github.com/xMathyu/hvac-scanner/internal/scanner"
)

func pngBytes(body string) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), body...)
}

func writeImages(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(paths[i], pngBytes(n), 0o600))
	}
	return paths
}

func withScanConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{Scanner: config.ScannerConfig{MaxImageBytes: 1 << 20}}
	t.Cleanup(func() { cfg = prev })
}

func TestImageGroups_ExpandsDirectories(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, "b.PNG", "a.jpg")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	single := writeImages(t, t.TempDir(), "c.png")

	groups, err := imageGroups([]string{dir, single[0]}, false)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpg")}, groups[0])
	assert.Equal(t, []string{filepath.Join(dir, "b.PNG")}, groups[1])
	assert.Equal(t, single, groups[2])

	together, err := imageGroups([]string{dir, single[0]}, true)
	require.NoError(t, err)
	require.Len(t, together, 1)
	assert.Len(t, together[0], 3)
}

func TestImageGroups_Errors(t *testing.T) {
	_, err := imageGroups([]string{filepath.Join(t.TempDir(), "missing.png")}, false)
	require.Error(t, err)

	_, err = imageGroups([]string{t.TempDir()}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no images found")
}

func TestRunScans_KeepsOrderAndIsolatesFailures(t *testing.T) {
	withScanConfig(t)
	dir := t.TempDir()
	paths := writeImages(t, dir, "1.png", "2.png", "3.png", "4.png")
	groups := [][]string{{paths[0]}, {paths[1]}, {paths[2]}, {paths[3]}}

	var inFlight, peak atomic.Int64
	items := runScans(context.Background(), groups, 2, func(_ context.Context, images []scanner.Image) (scanItem, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		if images[0].Name == "3.png" {
			return scanItem{}, eris.New("model unavailable")
		}
		return scanItem{Result: &scanner.ScanResult{}}, nil
	})

	require.Len(t, items, 4)
	for i, it := range items {
		assert.Equal(t, groups[i], it.Files)
	}
	assert.NotNil(t, items[0].Result)
	assert.Equal(t, "model unavailable", items[2].Error)
	assert.LessOrEqual(t, peak.Load(), int64(2))

	err := failedScans(items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 4 scans failed")
}

func TestRunScans_InvalidImageIsReported(t *testing.T) {
	withScanConfig(t)
	dir := t.TempDir()
	bad := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(bad, []byte("plain text"), 0o600))

	called := false
	items := runScans(context.Background(), [][]string{{bad}}, 1, func(context.Context, []scanner.Image) (scanItem, error) {
		called = true
		return scanItem{}, nil
	})

	assert.False(t, called)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Error, "unsupported type")
	assert.NoError(t, failedScans(nil))
}
