// Package metrics exports heap counters to Prometheus
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/fbheap/heap"
	"github.com/vkngwrapper/fbheap/memutils"
)

const (
	descSize = iota
	descFree
	descUsable
	descReserved
	descLargestFree
	descAllocations
	descBlocks
	descUnusedRanges
	descBlacklisted
)

var (
	descriptors = []*prometheus.Desc{
		descSize: prometheus.NewDesc(
			"fbheap_size_bytes",
			"Number of bytes managed by a heap.",
			[]string{
				"heap",
				"type",
			},
			nil,
		),
		descFree: prometheus.NewDesc(
			"fbheap_free_bytes",
			"Number of bytes in free blocks of a heap.",
			[]string{
				"heap",
			},
			nil,
		),
		descUsable: prometheus.NewDesc(
			"fbheap_usable_bytes",
			"Number of bytes of a heap not held by reserved regions.",
			[]string{
				"heap",
			},
			nil,
		),
		descReserved: prometheus.NewDesc(
			"fbheap_reserved_bytes",
			"Number of bytes of a heap held by reserved regions.",
			[]string{
				"heap",
			},
			nil,
		),
		descLargestFree: prometheus.NewDesc(
			"fbheap_largest_free_bytes",
			"Size of the largest free block of a heap.",
			[]string{
				"heap",
			},
			nil,
		),
		descAllocations: prometheus.NewDesc(
			"fbheap_allocations",
			"Number of live allocations in a heap, including reserved regions and blacklisted pages.",
			[]string{
				"heap",
			},
			nil,
		),
		descBlocks: prometheus.NewDesc(
			"fbheap_blocks",
			"Number of blocks, owned and free, in a heap.",
			[]string{
				"heap",
			},
			nil,
		),
		descUnusedRanges: prometheus.NewDesc(
			"fbheap_unused_ranges",
			"Number of free blocks in a heap.",
			[]string{
				"heap",
			},
			nil,
		),
		descBlacklisted: prometheus.NewDesc(
			"fbheap_blacklisted_bytes",
			"Number of bytes of a heap removed from circulation as bad pages.",
			[]string{
				"heap",
				"source",
			},
			nil,
		),
	}
)

// Source is the part of a heap the collector reads
type Source interface {
	Info() heap.Info
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
}

// Collector is a prometheus.Collector reporting on a set of named heaps
type Collector struct {
	mutex sync.Mutex
	heaps map[string]Source
}

var _ prometheus.Collector = &Collector{}

func NewCollector() *Collector {
	return &Collector{
		heaps: make(map[string]Source),
	}
}

// Add starts reporting on a heap under name, replacing any heap already registered with that name
func (c *Collector) Add(name string, source Source) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.heaps[name] = source
}

// Remove stops reporting on the named heap
func (c *Collector) Remove(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.heaps, name)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mutex.Lock()
	names := make([]string, 0, len(c.heaps))
	for name := range c.heaps {
		names = append(names, name)
	}
	sort.Strings(names)
	sources := make([]Source, len(names))
	for i, name := range names {
		sources[i] = c.heaps[name]
	}
	c.mutex.Unlock()

	for i, source := range sources {
		for _, metric := range collectHeap(names[i], source) {
			ch <- metric
		}
	}
}

func gauge(desc int, value uint64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(
		descriptors[desc],
		prometheus.GaugeValue,
		float64(value),
		labels...,
	)
}

func collectHeap(name string, source Source) []prometheus.Metric {
	info := source.Info()

	var stats memutils.DetailedStatistics
	stats.Clear()
	source.AddDetailedStatistics(&stats)

	return []prometheus.Metric{
		gauge(descSize, info.Size, name, info.Type.String()),
		gauge(descFree, info.Free, name),
		gauge(descUsable, info.Usable, name),
		gauge(descReserved, info.Reserved, name),
		gauge(descLargestFree, info.LargestFreeSize, name),
		gauge(descAllocations, uint64(info.Allocations), name),
		gauge(descBlocks, uint64(info.Blocks), name),
		gauge(descUnusedRanges, uint64(stats.UnusedRangeCount), name),
		gauge(descBlacklisted, info.StaticBlacklistBytes, name, "static"),
		gauge(descBlacklisted, info.DynamicBlacklistBytes, name, "dynamic"),
	}
}
