package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/vkngwrapper/fbheap/config"
	"github.com/vkngwrapper/fbheap/heap"
	"golang.org/x/exp/slog"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "fbheap"
	app.Usage = "Inspect and exercise framebuffer heap configurations"
	app.Description = `fbheap builds a heap from a YAML description and dumps it, queries allocation hints against it, or runs a randomized allocation workload over it`

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML heap description",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "Log output format: text or json",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "Minimum log level: debug, info, warn or error",
		},
	}

	app.Commands = []*cli.Command{
		cmdDump,
		cmdHint,
		cmdSimulate,
	}

	return app
}

func parseLevel(str string) (slog.Level, error) {
	switch strings.ToLower(str) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return 0, errors.Errorf("unknown log level %q", str)
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	options := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	}

	return nil, errors.Errorf("unknown log format %q", format)
}

// openHeap builds the heap described by --config and applies its bad pages. The default heap is a
// plain 256MiB global heap.
func openHeap(ctx *cli.Context) (*heap.Heap, *config.Config, error) {
	logger, err := newLogger(os.Stderr, ctx.String("log-format"), ctx.String("log-level"))
	if err != nil {
		return nil, nil, err
	}

	cfg := &config.Config{Size: 256 << 20}
	if path := ctx.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, nil, err
		}
	}

	options, err := cfg.CreateOptions()
	if err != nil {
		return nil, nil, err
	}

	h, err := heap.New(logger, uint64(cfg.Base), uint64(cfg.Size), options)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create heap")
	}

	pages, err := cfg.Blacklist()
	if err != nil {
		return nil, nil, err
	}
	if len(pages) > 0 {
		if err := h.BlacklistPages(pages); err != nil {
			return nil, nil, errors.Wrap(err, "failed to blacklist configured pages")
		}
	}

	return h, cfg, nil
}
