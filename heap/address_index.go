package heap

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// addressIndex maps the begin address of every block to the block
type addressIndex struct {
	tree *redblacktree.Tree
}

func newAddressIndex() addressIndex {
	return addressIndex{tree: redblacktree.NewWith(utils.UInt64Comparator)}
}

func (i *addressIndex) insert(b *block) {
	i.tree.Put(b.begin, b)
}

func (i *addressIndex) remove(b *block) {
	i.tree.Remove(b.begin)
}

// lookup finds the block containing address
func (i *addressIndex) lookup(address uint64) (*block, bool) {
	node, found := i.tree.Floor(address)
	if !found {
		return nil, false
	}

	b := node.Value.(*block)
	if address > b.end {
		return nil, false
	}

	return b, true
}

func (i *addressIndex) len() int {
	return i.tree.Size()
}
