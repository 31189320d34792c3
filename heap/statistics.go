package heap

import "github.com/vkngwrapper/fbheap/memutils"

// VisitAllBlocks calls visit for every block in address order, stopping at the first error
func (h *Heap) VisitAllBlocks(visit func(info BlockInfo) error) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for b := h.blockHead; b != nil; b = b.next {
		err := visit(b.info())
		if err != nil {
			return err
		}
	}

	return nil
}

// AddStatistics adds the heap's totals to stats. The heap counts as a single heap of its full size.
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	stats.HeapCount++
	stats.AllocationCount += h.allocCount
	stats.HeapBytes += h.total
	stats.AllocationBytes += h.total - h.free
}

// AddDetailedStatistics adds every owned and free block of the heap to stats. Each owned block counts
// as an allocation, so a non-contiguous allocation is counted once per extent.
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.addDetailedStatistics(stats)
}

func (h *Heap) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.HeapCount++
	stats.HeapBytes += h.total

	for b := h.blockHead; b != nil; b = b.next {
		if b.IsFree() {
			stats.AddUnusedRange(b.size())
		} else {
			stats.AddAllocation(b.size())
		}
	}
}
