package connection

// channelMap maps local channel ids to channel state. Allocation uses
// the lowest free id so the id space stays compact.
type channelMap struct {
	slots []*channel
	limit int
}

func newChannelMap(limit int) *channelMap {
	return &channelMap{limit: limit}
}

// allocate reserves the smallest unused id for ch and returns it.
func (m *channelMap) allocate(ch *channel) (uint32, bool) {
	for i, slot := range m.slots {
		if slot == nil {
			m.slots[i] = ch
			return uint32(i), true
		}
	}
	if len(m.slots) >= m.limit {
		return 0, false
	}
	m.slots = append(m.slots, ch)
	return uint32(len(m.slots) - 1), true
}

// get returns the channel for a local id, or nil.
func (m *channelMap) get(id uint32) *channel {
	if int(id) >= len(m.slots) {
		return nil
	}
	return m.slots[id]
}

// free releases a local id. Trailing free slots are trimmed so the
// backing slice tracks the compact id range.
func (m *channelMap) free(id uint32) {
	if int(id) >= len(m.slots) {
		return
	}
	m.slots[id] = nil
	for len(m.slots) > 0 && m.slots[len(m.slots)-1] == nil {
		m.slots = m.slots[:len(m.slots)-1]
	}
}

// byRemoteID returns the channel whose peer id matches, or nil. Used to
// detect duplicate CHANNEL_OPEN sender ids.
func (m *channelMap) byRemoteID(remoteID uint32) *channel {
	for _, ch := range m.slots {
		if ch != nil && ch.remoteKnown && ch.remoteID == remoteID {
			return ch
		}
	}
	return nil
}

// each calls fn for every live channel.
func (m *channelMap) each(fn func(*channel)) {
	for _, ch := range m.slots {
		if ch != nil {
			fn(ch)
		}
	}
}

// count returns the number of live channels.
func (m *channelMap) count() int {
	n := 0
	for _, ch := range m.slots {
		if ch != nil {
			n++
		}
	}
	return n
}
