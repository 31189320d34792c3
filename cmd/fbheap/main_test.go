package main

import (
	"bytes"
	"encoding/json"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fbheap/heap"
	"golang.org/x/exp/slog"
)

const testConfig = `
size: 1MiB
flags: [HeapCreatePageRetirement]
regions:
  - base: 0
    size: 64KiB
    reserved: true
  - base: 64KiB
    size: 960KiB
badPages:
  - address: 0x20000
    source: dbe
`

func runApp(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer

	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard

	err := app.Run(append([]string{"fbheap", "--log-level", "error"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "heap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

func TestNewLogger(t *testing.T) {
	testCases := map[string]struct {
		format  string
		level   string
		wantErr bool
	}{
		"TextDebug":     {format: "text", level: "debug"},
		"JSONWarn":      {format: "JSON", level: "warning"},
		"UnknownFormat": {format: "xml", level: "info", wantErr: true},
		"UnknownLevel":  {format: "text", level: "verbose", wantErr: true},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			logger, err := newLogger(io.Discard, testCase.format, testCase.level)
			if testCase.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestDump(t *testing.T) {
	out, err := runApp(t, "--config", writeConfig(t), "dump")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.NotEmpty(t, decoded)
}

func TestDumpSummary(t *testing.T) {
	out, err := runApp(t, "--config", writeConfig(t), "dump", "--summary")
	require.NoError(t, err)
	require.Contains(t, out, "Global heap at 0x0")
	require.Contains(t, out, "1.0 MiB total")
	require.Contains(t, out, "960 KiB usable")
	require.Contains(t, out, "956 KiB free")
}

func TestHint(t *testing.T) {
	out, err := runApp(t, "hint", "0x1800")
	require.NoError(t, err)
	require.Equal(t, "size 8.0 KiB (0x2000), alignment 0x1000\n", out)

	out, err = runApp(t, "hint", "--force", "--alignment", "64KiB", "--type", "texture", "0x1800")
	require.NoError(t, err)
	require.Equal(t, "size 64 KiB (0x10000), alignment 0x10000\n", out)

	_, err = runApp(t, "hint", "--type", "bogus", "0x1000")
	require.Error(t, err)

	_, err = runApp(t, "hint")
	require.Error(t, err)
}

func TestRunWorkload(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	h, err := heap.New(logger, 0, 4<<20, heap.CreateOptions{
		Flags: heap.HeapCreatePageRetirement | heap.HeapCreatePageShuffle,
	})
	require.NoError(t, err)
	require.NoError(t, h.BlacklistPages([]heap.BadPage{{Address: 0x3000, Source: heap.PageSourceDBE}}))

	live, summary, err := runWorkload(h, rand.New(rand.NewSource(7)), 2000, 256<<10)
	require.NoError(t, err)
	require.NotZero(t, summary.Allocations)
	require.NotZero(t, summary.Frees)
	require.Equal(t, len(live), summary.LiveAtFinish)
	require.Equal(t, 1, summary.BlacklistPages)
	require.LessOrEqual(t, summary.PeakAllocated, h.UsableSize())

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, summary))
	require.Contains(t, buf.String(), "allocations:")

	for _, entry := range live {
		for ; entry.refs > 0; entry.refs-- {
			require.NoError(t, h.Free(entry.alloc))
		}
	}
	require.Equal(t, h.UsableSize()-heap.PageSize, h.FreeBytes())
	require.NoError(t, h.Destroy())
}

func TestRunWorkloadZeroMaxSize(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	h, err := heap.New(logger, 0, 1<<20, heap.CreateOptions{})
	require.NoError(t, err)

	_, _, err = runWorkload(h, rand.New(rand.NewSource(1)), 10, 0)
	require.Error(t, err)
	require.NoError(t, h.Destroy())
}

func TestSimulate(t *testing.T) {
	out, err := runApp(t, "--config", writeConfig(t), "simulate", "--steps", "500", "--seed", "3", "--max-size", "64KiB")
	require.NoError(t, err)
	require.Contains(t, out, "seed:           3\n")
	require.Contains(t, out, "blacklisted:    1 pages\n")
}
