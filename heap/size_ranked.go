package heap

import (
	"github.com/emirpasic/gods/trees/redblacktree"
)

type rankKey struct {
	size  uint64
	begin uint64
}

// rankComparator orders free blocks largest first, then by address
func rankComparator(a, b interface{}) int {
	left := a.(rankKey)
	right := b.(rankKey)

	switch {
	case left.size > right.size:
		return -1
	case left.size < right.size:
		return 1
	case left.begin < right.begin:
		return -1
	case left.begin > right.begin:
		return 1
	}

	return 0
}

// sizeRankedList holds every free block ordered by descending size
type sizeRankedList struct {
	tree *redblacktree.Tree
}

func newSizeRankedList() sizeRankedList {
	return sizeRankedList{tree: redblacktree.NewWith(rankComparator)}
}

func (l *sizeRankedList) insert(b *block) {
	l.tree.Put(rankKey{size: b.size(), begin: b.begin}, b)
	b.ranked = true
}

func (l *sizeRankedList) remove(b *block) {
	if !b.ranked {
		return
	}

	l.tree.Remove(rankKey{size: b.size(), begin: b.begin})
	b.ranked = false
}

// holds reports whether b is ranked under its current size and begin
func (l *sizeRankedList) holds(b *block) bool {
	value, found := l.tree.Get(rankKey{size: b.size(), begin: b.begin})
	return found && value.(*block) == b
}

func (l *sizeRankedList) largest() (*block, bool) {
	node := l.tree.Left()
	if node == nil {
		return nil, false
	}

	return node.Value.(*block), true
}

// snapshot returns the ranked blocks in order. The caller may carve the returned blocks, which
// reorders the tree, so it must not iterate the tree directly.
func (l *sizeRankedList) snapshot() []*block {
	blocks := make([]*block, 0, l.tree.Size())

	it := l.tree.Iterator()
	for it.Next() {
		blocks = append(blocks, it.Value().(*block))
	}

	return blocks
}

func (l *sizeRankedList) len() int {
	return l.tree.Size()
}
