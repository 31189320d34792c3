package heap_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fbheap/heap"
)

type detailedMap struct {
	Type           string
	Base           string
	TotalBytes     string
	FreeBytes      string
	ReservedBytes  string
	Allocations    int
	Blocks         int
	UnusedRanges   int
	Suballocations []struct {
		Begin      string
		End        string
		Size       string
		Type       string
		Owner      string
		Offset     string
		RefCount   int
		Contiguous *bool
		CustomData string
	}
	Blacklist []struct {
		Address string
		Source  string
		State   string
	}
}

func TestDetailedMapJSON(t *testing.T) {
	h := newTestHeap(t, 0x10000, heap.CreateOptions{Flags: heap.HeapCreatePageRetirement})
	require.NoError(t, h.BlacklistPages([]heap.BadPage{{Address: 0x8000, Source: heap.PageSourceDBE}}))

	alloc, err := h.Allocate(heap.AllocationRequest{
		Owner:    testOwner,
		Type:     heap.TypeDepth,
		Size:     0x2000,
		UserData: "zbuffer",
	})
	require.NoError(t, err)

	var out detailedMap
	require.NoError(t, json.Unmarshal(h.DetailedMapJSON(), &out))

	require.Equal(t, "Global", out.Type)
	require.Equal(t, "0x0", out.Base)
	require.Equal(t, "0x10000", out.TotalBytes)
	require.Equal(t, "0xd000", out.FreeBytes)
	require.Equal(t, 2, out.Allocations)
	require.Equal(t, 4, out.Blocks)
	require.Equal(t, 2, out.UnusedRanges)

	require.Len(t, out.Suballocations, 4)
	require.Equal(t, "Free", out.Suballocations[0].Type)
	require.Equal(t, "0x8000", out.Suballocations[1].Begin)
	require.Equal(t, "Reserved", out.Suballocations[1].Type)
	require.Equal(t, "Blacklist", out.Suballocations[1].Owner)
	require.Equal(t, "Free", out.Suballocations[2].Type)

	depth := out.Suballocations[3]
	require.Equal(t, "0xe000", depth.Begin)
	require.Equal(t, "0xffff", depth.End)
	require.Equal(t, "0x2000", depth.Size)
	require.Equal(t, "Depth", depth.Type)
	require.Equal(t, "0x1", depth.Owner)
	require.Equal(t, 1, depth.RefCount)
	require.Nil(t, depth.Contiguous)
	require.Equal(t, "zbuffer", depth.CustomData)

	require.Len(t, out.Blacklist, 1)
	require.Equal(t, "0x8000", out.Blacklist[0].Address)
	require.Equal(t, "DBE", out.Blacklist[0].Source)
	require.Equal(t, "Valid", out.Blacklist[0].State)

	require.NoError(t, h.Free(alloc))
	require.NoError(t, h.Destroy())
}
