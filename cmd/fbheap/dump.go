package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

var cmdDump = &cli.Command{
	Name:   "dump",
	Usage:  "Print the initial block map of a heap",
	Action: runDump,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "summary",
			Usage: "Print a one-line summary instead of the JSON map",
		},
	},
}

func runDump(ctx *cli.Context) error {
	h, _, err := openHeap(ctx)
	if err != nil {
		return err
	}
	defer h.Destroy()

	if ctx.Bool("summary") {
		info := h.Info()
		_, err = fmt.Fprintf(ctx.App.Writer, "%s heap at 0x%x: %s total, %s usable, %s free, largest free %s at 0x%x, %d blocks\n",
			info.Type, info.Base,
			humanize.IBytes(info.Size),
			humanize.IBytes(info.Usable),
			humanize.IBytes(info.Free),
			humanize.IBytes(info.LargestFreeSize), info.LargestFreeOffset,
			info.Blocks,
		)
		return err
	}

	_, err = fmt.Fprintf(ctx.App.Writer, "%s\n", h.DetailedMapJSON())
	return err
}
