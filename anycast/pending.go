package anycast

import "time"

// pendingCapacity is the maximum number of outstanding client requests
// a connection may have in flight at once (§3 invariant 4).
const pendingCapacity = 5

// pendingEntry is a client-initiated request awaiting a server reply
// (§3 PendingEntry). It is addressed by its slot index in the arena,
// not by pointer, so the slot's timer can carry a plain int and the
// close/timer race (§5, §9) resolves by the timer firing a no-op when
// the slot it names is no longer in use — never a dangling reference.
type pendingEntry struct {
	seq     uint8
	address AnycastAddress
	payload []byte
}

type pendingSlot struct {
	used  bool
	entry pendingEntry
	timer *time.Timer
}

// pendingBuffer is the fixed 5-slot arena backing §4.B. Unlike the
// teacher's plist (an unbounded container/list.List scanned against a
// single shared timer), capacity here is small and fixed, so the spec
// prescribes one timer per slot and addressing by index (§9) instead
// of a shared-timer scan — every slot's timer fires independently and
// carries only its own index.
//
// pendingBuffer itself does not arm or read timers; it is plain data
// the connection's run loop is the sole owner of. Timer wiring lives
// in Connection.armPending so the fire callback can be routed back
// onto the loop's channel.
type pendingBuffer struct {
	slots [pendingCapacity]pendingSlot
}

func newPendingBuffer() *pendingBuffer {
	return &pendingBuffer{}
}

// reserve finds a free slot and marks it used, returning its index.
// It does not arm a timer; callers arm one before first use becomes
// externally observable, and must call removeAt on any failure path
// after reserve succeeds.
func (p *pendingBuffer) reserve(entry pendingEntry) (int, error) {
	for i := range p.slots {
		if !p.slots[i].used {
			p.slots[i].used = true
			p.slots[i].entry = entry
			p.slots[i].timer = nil
			return i, nil
		}
	}
	return -1, errBufferFull
}

// take removes and returns the first slot matching (address, seq),
// the unique-match invariant from §3 invariant 2. The caller is
// responsible for stopping the slot's timer; take only clears bookkeeping.
func (p *pendingBuffer) take(address AnycastAddress, seq uint8) (pendingEntry, *time.Timer, bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.used && s.entry.address == address && s.entry.seq == seq {
			entry, timer := s.entry, s.timer
			s.used = false
			s.entry = pendingEntry{}
			s.timer = nil
			return entry, timer, true
		}
	}
	return pendingEntry{}, nil, false
}

// removeAt releases slot i unconditionally (used by expiry and by
// Close). Returns the entry that occupied it, or ok=false if the slot
// was already free — the case a timer firing after a race loses to a
// response or to Close must tolerate (§5).
func (p *pendingBuffer) removeAt(i int) (pendingEntry, bool) {
	if i < 0 || i >= pendingCapacity || !p.slots[i].used {
		return pendingEntry{}, false
	}
	entry := p.slots[i].entry
	p.slots[i].used = false
	p.slots[i].entry = pendingEntry{}
	p.slots[i].timer = nil
	return entry, true
}

func (p *pendingBuffer) setTimer(i int, t *time.Timer) {
	p.slots[i].timer = t
}

func (p *pendingBuffer) timerAt(i int) *time.Timer {
	if i < 0 || i >= pendingCapacity || !p.slots[i].used {
		return nil
	}
	return p.slots[i].timer
}

// all returns a snapshot of the live entries (without their timers),
// used by the status reporter (§4.G).
func (p *pendingBuffer) all() []pendingEntry {
	out := make([]pendingEntry, 0, pendingCapacity)
	for i := range p.slots {
		if p.slots[i].used {
			out = append(out, p.slots[i].entry)
		}
	}
	return out
}

func (p *pendingBuffer) size() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].used {
			n++
		}
	}
	return n
}
