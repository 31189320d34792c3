package heap

type textureSlot struct {
	client     ClientID
	direction  GrowDirection
	mostRecent bool
	refCount   uint32
}

// textureRing remembers the grow direction handed to each recent producer of texture allocations, so
// that two clients streaming textures at the same time fill the heap from opposite ends
type textureRing struct {
	slots []textureSlot
}

func newTextureRing(capacity int) textureRing {
	return textureRing{slots: make([]textureSlot, capacity)}
}

// place returns the ring slot for client along with the direction its allocation should grow in and
// whether bucket placement should be ignored
func (r *textureRing) place(client ClientID, current GrowDirection, ignoreBankPlacement bool) (int, GrowDirection, bool) {
	direction := current
	found := -1
	mostRecent := -1
	clients := 0

	for i := range r.slots {
		slot := &r.slots[i]
		if slot.client == client {
			direction = slot.direction
			found = i
		}
		if slot.client != 0 {
			clients++
		}
		if slot.mostRecent {
			mostRecent = i
		}
	}

	if clients > 1 {
		ignoreBankPlacement = true
	}

	if found >= 0 {
		return found, direction, ignoreBankPlacement
	}

	for i := range r.slots {
		slot := &r.slots[i]
		if slot.client != 0 {
			continue
		}

		slot.client = client
		slot.mostRecent = true
		if mostRecent < 0 {
			slot.direction = current
			return i, current.opposite(), ignoreBankPlacement
		}

		direction = r.slots[mostRecent].direction.opposite()
		r.slots[mostRecent].mostRecent = false
		slot.direction = direction
		return i, direction, true
	}

	// The ring is full: evict the slot after the most recent one
	previous := current
	if mostRecent >= 0 {
		previous = r.slots[mostRecent].direction
		r.slots[mostRecent].mostRecent = false
	}

	index := (mostRecent + 1) % len(r.slots)
	direction = previous.opposite()
	r.slots[index] = textureSlot{
		client:     client,
		direction:  direction,
		mostRecent: true,
	}

	return index, direction, true
}

func (r *textureRing) acquire(index int) {
	r.slots[index].refCount++
}

func (r *textureRing) release(index int, client ClientID) {
	slot := &r.slots[index]
	if slot.client != client {
		// The slot was evicted and reused while this allocation was live
		return
	}

	if slot.refCount > 0 {
		slot.refCount--
	}
	if slot.refCount == 0 {
		*slot = textureSlot{}
	}
}
