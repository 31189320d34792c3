package memutils

import "math"

// Statistics holds running totals over one or more heaps. Each heap contributes one to HeapCount and
// its full managed size to HeapBytes, whether or not any of it is allocated.
type Statistics struct {
	HeapCount       int
	AllocationCount int
	HeapBytes       uint64
	AllocationBytes uint64
}

func (s *Statistics) Clear() {
	*s = Statistics{}
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.HeapCount += other.HeapCount
	s.AllocationCount += other.AllocationCount
	s.HeapBytes += other.HeapBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with the size distribution of owned blocks and free ranges.
// The minimums read as math.MaxUint64 until something has been added.
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	UnusedRangeBytes   uint64
	AllocationSizeMin  uint64
	AllocationSizeMax  uint64
	UnusedRangeSizeMin uint64
	UnusedRangeSizeMax uint64
}

func (s *DetailedStatistics) Clear() {
	*s = DetailedStatistics{
		AllocationSizeMin:  math.MaxUint64,
		UnusedRangeSizeMin: math.MaxUint64,
	}
}

// AddUnusedRange records one free range of size bytes
func (s *DetailedStatistics) AddUnusedRange(size uint64) {
	s.UnusedRangeCount++
	s.UnusedRangeBytes += size
	s.UnusedRangeSizeMin = Min(s.UnusedRangeSizeMin, size)
	s.UnusedRangeSizeMax = Max(s.UnusedRangeSizeMax, size)
}

// AddAllocation records one owned block of size bytes
func (s *DetailedStatistics) AddAllocation(size uint64) {
	s.AllocationCount++
	s.AllocationBytes += size
	s.AllocationSizeMin = Min(s.AllocationSizeMin, size)
	s.AllocationSizeMax = Max(s.AllocationSizeMax, size)
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)

	s.UnusedRangeCount += other.UnusedRangeCount
	s.UnusedRangeBytes += other.UnusedRangeBytes
	s.UnusedRangeSizeMin = Min(s.UnusedRangeSizeMin, other.UnusedRangeSizeMin)
	s.UnusedRangeSizeMax = Max(s.UnusedRangeSizeMax, other.UnusedRangeSizeMax)
	s.AllocationSizeMin = Min(s.AllocationSizeMin, other.AllocationSizeMin)
	s.AllocationSizeMax = Max(s.AllocationSizeMax, other.AllocationSizeMax)
}
