package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"github.com/vkngwrapper/fbheap/config"
	"github.com/vkngwrapper/fbheap/heap"
	"github.com/vkngwrapper/fbheap/memutils"
	"github.com/vkngwrapper/fbheap/metrics"
)

var cmdSimulate = &cli.Command{
	Name:   "simulate",
	Usage:  "Run a randomized allocation workload against a heap",
	Action: runSimulate,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "steps",
			Value: 10000,
			Usage: "Number of operations to run",
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "Random seed, the current time when unset",
		},
		&cli.StringFlag{
			Name:  "max-size",
			Value: "1MiB",
			Usage: "Largest single allocation",
		},
		&cli.StringFlag{
			Name:  "name",
			Value: "fb0",
			Usage: "Heap label reported in metrics",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address and keep serving after the workload finishes",
		},
	},
}

var workloadTypes = []heap.AllocationType{
	heap.TypeImage,
	heap.TypeDepth,
	heap.TypeTexture,
	heap.TypeVideo,
	heap.TypeShaderProgram,
	heap.TypeInstance,
	heap.TypeNotifier,
}

type workloadSummary struct {
	Allocations    int
	Noncontiguous  int
	Frees          int
	References     int
	OutOfMemory    int
	PeakAllocated  uint64
	FinalFree      uint64
	LargestFree    uint64
	LiveAtFinish   int
	UnusedRanges   int
	BlacklistPages int
}

type liveAllocation struct {
	alloc *heap.Allocation
	refs  int
}

// runWorkload drives steps random operations against h. Allocations still live when the workload
// finishes are left in place.
func runWorkload(h *heap.Heap, rng *rand.Rand, steps int, maxSize uint64) ([]*liveAllocation, workloadSummary, error) {
	var summary workloadSummary
	var live []*liveAllocation

	if maxSize == 0 {
		return nil, summary, errors.Wrap(memutils.ErrInvalidArgument, "max size must be greater than zero")
	}

	for step := 0; step < steps; step++ {
		op := rng.Intn(10)

		switch {
		case op < 5 || len(live) == 0:
			req := heap.AllocationRequest{
				Owner:     heap.Owner(1 + rng.Intn(8)),
				Client:    heap.ClientID(rng.Intn(4)),
				Type:      workloadTypes[rng.Intn(len(workloadTypes))],
				Size:      1 + uint64(rng.Int63n(int64(maxSize))),
				Alignment: uint64(1) << (12 + rng.Intn(5)),
			}
			if rng.Intn(4) == 0 {
				req.Flags |= heap.AllocNoncontiguousAllowed
			}
			if rng.Intn(8) == 0 {
				req.Flags |= heap.AllocForceMemGrowsDown
			}

			alloc, err := h.Allocate(req)
			if errors.Is(err, memutils.ErrOutOfMemory) {
				summary.OutOfMemory++
				continue
			} else if err != nil {
				return live, summary, errors.Wrapf(err, "step %d: allocate %s", step, humanize.IBytes(req.Size))
			}

			summary.Allocations++
			if !alloc.Contiguous() {
				summary.Noncontiguous++
			}
			live = append(live, &liveAllocation{alloc: alloc, refs: 1})

			allocated := h.UsableSize() - h.FreeBytes()
			summary.PeakAllocated = memutils.Max(summary.PeakAllocated, allocated)

		case op < 9:
			index := rng.Intn(len(live))
			entry := live[index]

			if err := h.Free(entry.alloc); err != nil {
				return live, summary, errors.Wrapf(err, "step %d: free 0x%x", step, entry.alloc.Offset())
			}
			summary.Frees++

			entry.refs--
			if entry.refs == 0 {
				live[index] = live[len(live)-1]
				live = live[:len(live)-1]
			}

		default:
			entry := live[rng.Intn(len(live))]
			if !entry.alloc.Contiguous() {
				continue
			}

			if err := h.Reference(entry.alloc.Owner(), entry.alloc.Offset()); err != nil {
				return live, summary, errors.Wrapf(err, "step %d: reference 0x%x", step, entry.alloc.Offset())
			}
			summary.References++
			entry.refs++
		}
	}

	if err := h.Validate(); err != nil {
		return live, summary, err
	}

	var stats memutils.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	info := h.Info()
	summary.FinalFree = info.Free
	summary.LargestFree = info.LargestFreeSize
	summary.LiveAtFinish = len(live)
	summary.UnusedRanges = stats.UnusedRangeCount
	summary.BlacklistPages = len(h.Blacklist())

	return live, summary, nil
}

func printSummary(w io.Writer, summary workloadSummary) error {
	_, err := fmt.Fprintf(w, `allocations:    %d (%d non-contiguous)
frees:          %d
references:     %d
out of memory:  %d
peak allocated: %s
free at finish: %s in %d ranges, largest %s
live at finish: %d
blacklisted:    %d pages
`,
		summary.Allocations, summary.Noncontiguous,
		summary.Frees,
		summary.References,
		summary.OutOfMemory,
		humanize.IBytes(summary.PeakAllocated),
		humanize.IBytes(summary.FinalFree), summary.UnusedRanges, humanize.IBytes(summary.LargestFree),
		summary.LiveAtFinish,
		summary.BlacklistPages,
	)
	return err
}

func runSimulate(ctx *cli.Context) error {
	h, _, err := openHeap(ctx)
	if err != nil {
		return err
	}
	defer h.Destroy()

	maxSize, err := config.ParseSize(ctx.String("max-size"))
	if err != nil {
		return err
	}

	seed := ctx.Int64("seed")
	if !ctx.IsSet("seed") {
		seed = time.Now().UnixNano()
	}

	var server *http.Server
	if addr := ctx.String("metrics-addr"); addr != "" {
		collector := metrics.NewCollector()
		collector.Add(ctx.String("name"), h)

		registry := prometheus.NewRegistry()
		if err := registry.Register(collector); err != nil {
			return errors.Wrap(err, "failed to register heap collector")
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: addr, Handler: mux}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	live, summary, err := runWorkload(h, rand.New(rand.NewSource(seed)), ctx.Int("steps"), uint64(maxSize))
	if err != nil {
		return errors.Wrapf(err, "workload failed with seed %d", seed)
	}

	fmt.Fprintf(ctx.App.Writer, "seed:           %d\n", seed)
	if err := printSummary(ctx.App.Writer, summary); err != nil {
		return err
	}

	if server != nil {
		sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
		<-sigCtx.Done()
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to stop metrics server")
		}
	}

	for _, entry := range live {
		for ; entry.refs > 0; entry.refs-- {
			if err := h.Free(entry.alloc); err != nil {
				return errors.Wrap(err, "failed to release workload allocations")
			}
		}
	}

	return nil
}
