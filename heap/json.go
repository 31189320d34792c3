package heap

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/fbheap/memutils"
)

// PrintDetailedMap writes the heap's counters, every block, and the blacklist to writer as a single
// JSON object
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	var stats memutils.DetailedStatistics
	stats.Clear()
	h.addDetailedStatistics(&stats)

	objState.Name("Type").String(h.heapType.String())
	objState.Name("Base").String(hexString(h.base))
	objState.Name("TotalBytes").String(hexString(h.total))
	objState.Name("FreeBytes").String(hexString(h.free))
	objState.Name("ReservedBytes").String(hexString(h.reserved))
	objState.Name("Allocations").Int(h.allocCount)
	objState.Name("Blocks").Int(h.blockCount)
	objState.Name("UnusedRanges").Int(stats.UnusedRangeCount)

	h.printDetailedMapBlocks(objState)
	h.printDetailedMapBlacklist(objState)
}

func (h *Heap) printDetailedMapBlocks(json jwriter.ObjectState) {
	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	for b := h.blockHead; b != nil; b = b.next {
		obj := arrayState.Object()

		obj.Name("Begin").String(hexString(b.begin))
		obj.Name("End").String(hexString(b.end))
		obj.Name("Size").String(hexString(b.size()))

		if b.IsFree() {
			obj.Name("Type").String("Free")
		} else {
			obj.Name("Type").String(b.owned.allocType.String())
			obj.Name("Owner").String(b.owned.owner.String())
			obj.Name("Offset").String(hexString(b.offset()))
			obj.Name("RefCount").Int(int(b.owned.refCount))
			if !b.owned.contiguous {
				obj.Name("Contiguous").Bool(false)
			}
			if b.owned.userData != nil {
				obj.Name("CustomData").String(fmt.Sprintf("%+v", b.owned.userData))
			}
		}

		obj.End()
	}
}

func (h *Heap) printDetailedMapBlacklist(json jwriter.ObjectState) {
	if len(h.blacklist.chunks) == 0 {
		return
	}

	arrayState := json.Name("Blacklist").Array()
	defer arrayState.End()

	for _, chunk := range h.blacklist.chunks {
		obj := arrayState.Object()
		obj.Name("Address").String(hexString(chunk.address))
		obj.Name("Source").String(chunk.page.Source.String())
		obj.Name("State").String(chunk.state().String())
		obj.End()
	}
}

// DetailedMapJSON returns the output of PrintDetailedMap as a byte slice
func (h *Heap) DetailedMapJSON() []byte {
	writer := jwriter.NewWriter()
	h.PrintDetailedMap(&writer)
	return writer.Bytes()
}
