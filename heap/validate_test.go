package heap

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestValidateStaleRankKey(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	h, err := New(logger, 0, 0x10000, CreateOptions{})
	require.NoError(t, err)

	alloc, err := h.Allocate(AllocationRequest{Owner: 1, Size: 0x1000})
	require.NoError(t, err)
	require.NoError(t, h.Validate())

	free := h.freeHead
	require.NotNil(t, free)
	key := rankKey{size: free.size(), begin: free.begin}

	h.ranked.tree.Remove(key)
	h.ranked.tree.Put(rankKey{size: free.size() + PageSize, begin: free.begin}, free)

	err = h.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "stale key")

	h.ranked.tree.Remove(rankKey{size: free.size() + PageSize, begin: free.begin})
	h.ranked.tree.Put(key, free)
	require.NoError(t, h.Validate())

	require.NoError(t, h.Free(alloc))
	require.NoError(t, h.Destroy())
}
