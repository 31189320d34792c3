package heap

// GrowDirection is the end of the free list that a placement scan starts from
type GrowDirection uint8

const (
	// GrowUp places allocations at the lowest suitable address
	GrowUp GrowDirection = iota
	// GrowDown places allocations at the highest suitable address
	GrowDown
)

var growDirectionMapping = map[GrowDirection]string{
	GrowUp:   "Up",
	GrowDown: "Down",
}

func (d GrowDirection) String() string {
	return growDirectionMapping[d]
}

func (d GrowDirection) opposite() GrowDirection {
	if d == GrowUp {
		return GrowDown
	}
	return GrowUp
}

// PlacementClass is a bucket of allocation types that share a grow direction
type PlacementClass uint8

const (
	PlacementImage PlacementClass = iota
	PlacementDepth
	PlacementTextureOverlayFont
	PlacementOther

	numPlacementClasses
)

var placementClassMapping = map[PlacementClass]string{
	PlacementImage:              "Image",
	PlacementDepth:              "Depth",
	PlacementTextureOverlayFont: "TextureOverlayFont",
	PlacementOther:              "Other",
}

func (c PlacementClass) String() string {
	return placementClassMapping[c]
}

// ParsePlacementClass converts a name printed by PlacementClass.String back into the class
func ParsePlacementClass(name string) (PlacementClass, bool) {
	for class, str := range placementClassMapping {
		if str == name {
			return class, true
		}
	}
	return 0, false
}

// PlacementClassOf returns the bucket an allocation type is placed from
func PlacementClassOf(t AllocationType) PlacementClass {
	switch t {
	case TypeImage, TypeNotifier:
		return PlacementImage
	case TypeDepth, TypeZCull, TypeStencil:
		return PlacementDepth
	case TypeTexture, TypeVideo, TypeFont:
		return PlacementTextureOverlayFont
	default:
		return PlacementOther
	}
}

func defaultPlacement() [numPlacementClasses]GrowDirection {
	return [numPlacementClasses]GrowDirection{
		PlacementImage:              GrowUp,
		PlacementDepth:              GrowDown,
		PlacementTextureOverlayFont: GrowDown,
		PlacementOther:              GrowDown,
	}
}

// bankPlacement chooses the scan direction for an allocation and returns the flags with any implied
// AllocIgnoreBankPlacement added
func (h *Heap) bankPlacement(allocType AllocationType, flags AllocationFlags) (GrowDirection, AllocationFlags) {
	direction := h.placement[PlacementClassOf(allocType)]
	if allocType == TypePrimary {
		direction = GrowUp
	}

	if flags&AllocBankForce != 0 {
		direction = GrowUp
		if flags&AllocBankGrowDown != 0 {
			direction = GrowDown
		}
		flags &^= AllocBankHint
	}

	if flags&AllocForceMemGrowsUp != 0 {
		direction = GrowUp
		flags |= AllocIgnoreBankPlacement
	} else if flags&AllocForceMemGrowsDown != 0 {
		direction = GrowDown
		flags |= AllocIgnoreBankPlacement
	}

	return direction, flags
}

// hintedDirection applies a per-allocation bank hint. Hints are dropped when bank placement is ignored.
func hintedDirection(direction GrowDirection, flags AllocationFlags, ignoreBankPlacement bool) GrowDirection {
	if ignoreBankPlacement || flags&AllocBankHint == 0 {
		return direction
	}

	if flags&AllocBankGrowDown != 0 {
		return GrowDown
	}
	return GrowUp
}
