package packetcache

import "sort"

// AssertSorted enables a debug-build invariant check on every insert.
// It is off by default so production inserts stay on the O(log N) /
// O(shift) hot path without an extra full-buffer scan.
var AssertSorted = false

// CircularBuffer is a bounded, start-time-sorted ring of packets for a
// single sensor key. It is a plain slice (guarded by the mutex of the
// CappedCollection ring that owns it), kept sorted rather than indexed
// as a literal ring because backfill requires arbitrary-position
// insertion.
type CircularBuffer struct {
	capacity int
	packets  []Packet
}

// NewCircularBuffer returns an empty ring with the given capacity. The
// caller (CappedCollection) is responsible for synchronizing access;
// CircularBuffer itself holds no lock so that tests can exercise the
// pure insertion/query logic without goroutines.
func NewCircularBuffer(capacity int) *CircularBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CircularBuffer{capacity: capacity}
}

// Len returns the number of packets currently retained.
func (b *CircularBuffer) Len() int {
	return len(b.packets)
}

// Add inserts p, handling four cases:
//  1. empty ring -> append
//  2. start time newer than the newest retained packet -> append (hot path)
//  3. ring full and start time older than the oldest retained packet -> drop
//  4. otherwise -> backfill: replace on an exact start-time match (newest
//     wins), or insert before the first packet with a start time >= t
func (b *CircularBuffer) Add(p Packet) {
	n := len(b.packets)

	if n == 0 {
		b.packets = append(b.packets, p)
		return
	}

	newest := b.packets[n-1]
	if p.StartTime > newest.StartTime {
		b.packets = append(b.packets, p)
		if len(b.packets) > b.capacity {
			b.packets = b.packets[1:]
		}
		b.assertSorted()
		return
	}

	oldest := b.packets[0]
	if n >= b.capacity && p.StartTime < oldest.StartTime {
		return // expired backfill, dropped silently
	}

	idx := sort.Search(n, func(i int) bool { return b.packets[i].StartTime >= p.StartTime })
	if idx < n && b.packets[idx].StartTime == p.StartTime {
		b.packets[idx] = p // newest wins
		b.assertSorted()
		return
	}

	b.packets = append(b.packets, Packet{})
	copy(b.packets[idx+1:], b.packets[idx:])
	b.packets[idx] = p
	if len(b.packets) > b.capacity {
		// The insert pushed the ring over capacity; evict the oldest
		// packet (index 0), not the newest, so a mid-ring backfill never
		// discards data newer than what it inserted.
		b.packets = b.packets[1:]
	}
	b.assertSorted()
}

// GetRange returns packets with start_time in (t0, t1]: the packet
// whose start time is the largest value <= t0 is excluded, implemented
// as two upper-bound searches.
func (b *CircularBuffer) GetRange(t0, t1 int64) []Packet {
	n := len(b.packets)
	start := sort.Search(n, func(i int) bool { return b.packets[i].StartTime > t0 })
	end := sort.Search(n, func(i int) bool { return b.packets[i].StartTime > t1 })
	if start >= end {
		return nil
	}
	out := make([]Packet, end-start)
	copy(out, b.packets[start:end])
	return out
}

func (b *CircularBuffer) assertSorted() {
	if !AssertSorted {
		return
	}
	for i := 1; i < len(b.packets); i++ {
		if b.packets[i-1].StartTime >= b.packets[i].StartTime {
			panic("packetcache: ring is not strictly sorted by start time")
		}
	}
}
