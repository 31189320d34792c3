package metrics_test

import (
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fbheap/heap"
	"github.com/vkngwrapper/fbheap/metrics"
	"golang.org/x/exp/slog"
)

func newHeap(t *testing.T) *heap.Heap {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	h, err := heap.New(logger, 0, 0x10000, heap.CreateOptions{
		Flags: heap.HeapCreatePageRetirement,
		Regions: heap.StaticRegions{
			{Base: 0, Limit: 0xFFF, Reserved: true},
			{Base: 0x1000, Limit: 0xFFFF},
		},
	})
	require.NoError(t, err)
	return h
}

func TestCollector(t *testing.T) {
	h := newHeap(t)
	require.NoError(t, h.BlacklistPages([]heap.BadPage{{Address: 0x8000, Source: heap.PageSourceDBE}}))

	alloc, err := h.Allocate(heap.AllocationRequest{Owner: 1, Size: 0x2000})
	require.NoError(t, err)

	collector := metrics.NewCollector()
	collector.Add("fb0", h)

	expected := `
# HELP fbheap_allocations Number of live allocations in a heap, including reserved regions and blacklisted pages.
# TYPE fbheap_allocations gauge
fbheap_allocations{heap="fb0"} 3
# HELP fbheap_blacklisted_bytes Number of bytes of a heap removed from circulation as bad pages.
# TYPE fbheap_blacklisted_bytes gauge
fbheap_blacklisted_bytes{heap="fb0",source="dynamic"} 4096
fbheap_blacklisted_bytes{heap="fb0",source="static"} 0
# HELP fbheap_free_bytes Number of bytes in free blocks of a heap.
# TYPE fbheap_free_bytes gauge
fbheap_free_bytes{heap="fb0"} 49152
# HELP fbheap_largest_free_bytes Size of the largest free block of a heap.
# TYPE fbheap_largest_free_bytes gauge
fbheap_largest_free_bytes{heap="fb0"} 28672
# HELP fbheap_size_bytes Number of bytes managed by a heap.
# TYPE fbheap_size_bytes gauge
fbheap_size_bytes{heap="fb0",type="Global"} 65536
# HELP fbheap_unused_ranges Number of free blocks in a heap.
# TYPE fbheap_unused_ranges gauge
fbheap_unused_ranges{heap="fb0"} 2
`

	err = testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"fbheap_allocations",
		"fbheap_blacklisted_bytes",
		"fbheap_free_bytes",
		"fbheap_largest_free_bytes",
		"fbheap_size_bytes",
		"fbheap_unused_ranges",
	)
	require.NoError(t, err)

	require.NoError(t, h.Free(alloc))
	require.NoError(t, h.Destroy())
}

func TestCollectorRegistration(t *testing.T) {
	collector := metrics.NewCollector()

	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(collector))

	require.Equal(t, 0, testutil.CollectAndCount(collector))

	first := newHeap(t)
	second := newHeap(t)
	collector.Add("fb0", first)
	collector.Add("fb1", second)
	require.Equal(t, 20, testutil.CollectAndCount(collector))
	require.Equal(t, 2, testutil.CollectAndCount(collector, "fbheap_free_bytes"))

	collector.Remove("fb0")
	require.Equal(t, 10, testutil.CollectAndCount(collector))

	families, err := registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	require.NoError(t, first.Destroy())
	require.NoError(t, second.Destroy())
}
