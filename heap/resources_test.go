package heap_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fbheap/heap"
	"github.com/vkngwrapper/fbheap/heap/mocks"
	"github.com/vkngwrapper/fbheap/memutils"
	"go.uber.org/mock/gomock"
)

func TestResourceManagerBinding(t *testing.T) {
	ctrl := gomock.NewController(t)
	resources := mocks.NewMockResourceManager(ctrl)

	h := newTestHeap(t, 0x10000, heap.CreateOptions{ResourceManager: resources})

	expected := heap.ResourceInfo{
		Owner:       testOwner,
		Type:        heap.TypeDepth,
		Offset:      0xF000,
		Begin:       0xF000,
		End:         0xFFFF,
		Align:       0xF000,
		Compression: heap.CompressionAny,
		Contiguous:  true,
		UserData:    "zbuffer",
	}

	resources.EXPECT().AllocateResources(expected).Return("comptags", nil)

	alloc, err := h.Allocate(heap.AllocationRequest{
		Owner:       testOwner,
		Type:        heap.TypeDepth,
		Size:        0x1000,
		Compression: heap.CompressionAny,
		UserData:    "zbuffer",
	})
	require.NoError(t, err)
	require.Equal(t, "zbuffer", alloc.UserData())

	resources.EXPECT().FreeResources(expected, "comptags").Return(nil)
	require.NoError(t, h.Free(alloc))
	requireSingleFreeBlock(t, h)
}

func TestResourceManagerFailureUnwinds(t *testing.T) {
	ctrl := gomock.NewController(t)
	resources := mocks.NewMockResourceManager(ctrl)

	resources.EXPECT().AllocateResources(gomock.Any()).Return(nil, nil).Times(16)
	resources.EXPECT().FreeResources(gomock.Any(), gomock.Any()).Return(nil).Times(8)

	h := newTestHeap(t, 0x10000, heap.CreateOptions{ResourceManager: resources})
	kept := fragment(t, h)
	before := collectBlocks(t, h)

	resources.EXPECT().AllocateResources(gomock.Any()).Return(nil, memutils.ErrBusy).Times(2)

	_, err := h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x1000})
	require.ErrorIs(t, err, memutils.ErrBusy)
	require.Equal(t, before, collectBlocks(t, h))

	_, err = h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x4000, Flags: heap.AllocNoncontiguousAllowed})
	require.ErrorIs(t, err, memutils.ErrBusy)
	require.Equal(t, before, collectBlocks(t, h))
	require.NoError(t, h.Validate())

	resources.EXPECT().FreeResources(gomock.Any(), gomock.Any()).Return(nil).Times(8)
	for _, alloc := range kept {
		require.NoError(t, h.Free(alloc))
	}
	requireSingleFreeBlock(t, h)
}

func TestResourceManagerFreeFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	resources := mocks.NewMockResourceManager(ctrl)

	h := newTestHeap(t, 0x10000, heap.CreateOptions{ResourceManager: resources})

	resources.EXPECT().AllocateResources(gomock.Any()).Return(42, nil)
	alloc, err := h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x1000})
	require.NoError(t, err)

	resources.EXPECT().FreeResources(gomock.Any(), 42).Return(errors.New("tag pool corrupted"))
	err = h.Free(alloc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "tag pool corrupted")

	// The address range is reclaimed regardless
	requireSingleFreeBlock(t, h)
}

func TestNoncontiguousResourcesBoundOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	resources := mocks.NewMockResourceManager(ctrl)
	resources.EXPECT().AllocateResources(gomock.Any()).Return(nil, nil).Times(16)
	resources.EXPECT().FreeResources(gomock.Any(), gomock.Any()).Return(nil).Times(8)

	h := newTestHeap(t, 0x10000, heap.CreateOptions{ResourceManager: resources})
	kept := fragment(t, h)

	resources.EXPECT().AllocateResources(gomock.Any()).DoAndReturn(func(info heap.ResourceInfo) (heap.HWResource, error) {
		require.False(t, info.Contiguous)
		require.Equal(t, uint64(0x1000), info.Begin)
		return "chain", nil
	})
	alloc, err := h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x2000, Flags: heap.AllocNoncontiguous})
	require.NoError(t, err)
	require.Len(t, alloc.Extents(), 2)

	resources.EXPECT().FreeResources(gomock.Any(), "chain").Return(nil)
	require.NoError(t, h.Free(alloc))

	resources.EXPECT().FreeResources(gomock.Any(), gomock.Any()).Return(nil).Times(8)
	for _, alloc := range kept {
		require.NoError(t, h.Free(alloc))
	}
	requireSingleFreeBlock(t, h)
}
