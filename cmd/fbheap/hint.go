package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/vkngwrapper/fbheap/config"
	"github.com/vkngwrapper/fbheap/heap"
)

var cmdHint = &cli.Command{
	Name:      "hint",
	Usage:     "Report the size and alignment an allocation would receive",
	ArgsUsage: "<size>",
	Action:    runHint,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "type",
			Value: heap.TypeImage.String(),
			Usage: "Allocation type",
		},
		&cli.StringFlag{
			Name:  "alignment",
			Usage: "Requested alignment, honored together with --force",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Force the requested alignment",
		},
		&cli.BoolFlag{
			Name:  "host-page",
			Usage: "Align to the host page size as well",
		},
	},
}

func runHint(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("hint takes exactly one size argument")
	}

	size, err := config.ParseSize(ctx.Args().First())
	if err != nil {
		return err
	}

	allocType, ok := heap.ParseAllocationType(ctx.String("type"))
	if !ok {
		return errors.Errorf("unknown allocation type %q", ctx.String("type"))
	}

	req := heap.HintRequest{
		Type: allocType,
		Size: uint64(size),
	}
	if str := ctx.String("alignment"); str != "" {
		alignment, err := config.ParseSize(str)
		if err != nil {
			return err
		}
		req.Alignment = uint64(alignment)
	}
	if ctx.Bool("force") {
		req.Flags |= heap.AllocAlignmentForce
	}
	if ctx.Bool("host-page") {
		req.Flags |= heap.AllocForceAlignHostPage
	}

	h, _, err := openHeap(ctx)
	if err != nil {
		return err
	}
	defer h.Destroy()

	result, err := h.AllocateHint(req)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(ctx.App.Writer, "size %s (0x%x), alignment 0x%x\n", humanize.IBytes(result.Size), result.Size, result.Alignment)
	return err
}
