package packetcache

import (
	"errors"
	"sync"
)

// ErrInvalidPacket is returned by CappedCollection.AddPacket when the
// packet fails its validity check.
var ErrInvalidPacket = errors.New("packetcache: invalid packet")

// ErrNoSensor is returned when a query names a sensor key that has no
// ring in the collection (maps to ReturnCode NO_SENSOR on the wire).
var ErrNoSensor = errors.New("packetcache: no such sensor")

// ring pairs a CircularBuffer with the mutex that guards it. AddPacket
// and GetPackets take and release this lock per call; no lock is held
// across a suspension point.
type ring struct {
	mu     sync.Mutex
	buffer *CircularBuffer
}

// CappedCollection maps sensor keys to bounded per-sensor rings. It is
// sized for thousands of sensors, each with thousands of packets;
// AddPacket and GetPackets are O(log N) (or O(N) in the number of
// returned packets) in the ring, never O(N) in the full cache.
type CappedCollection struct {
	capacity int

	mu    sync.RWMutex
	rings map[string]*ring
}

// NewCappedCollection returns a collection whose per-sensor rings each
// hold up to capacity packets.
func NewCappedCollection(capacity int) *CappedCollection {
	return &CappedCollection{capacity: capacity, rings: make(map[string]*ring)}
}

// AddPacket validates and inserts p into its sensor's ring, creating the
// ring on first use. Rings are looked up under a brief read lock and
// created under a brief write lock; the collection lock is never held
// while the per-ring CircularBuffer.Add runs.
func (c *CappedCollection) AddPacket(p Packet) error {
	if !p.Valid() {
		return ErrInvalidPacket
	}
	r := c.ringFor(p.Key())
	r.mu.Lock()
	r.buffer.Add(p)
	r.mu.Unlock()
	return nil
}

func (c *CappedCollection) ringFor(key SensorKey) *ring {
	name := key.String()

	c.mu.RLock()
	r, ok := c.rings[name]
	c.mu.RUnlock()
	if ok {
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rings[name]; ok {
		return r
	}
	r = &ring{buffer: NewCircularBuffer(c.capacity)}
	c.rings[name] = r
	return r
}

// GetPackets returns packets for key with start_time in (t0, t1]. A
// missing sensor key reports ErrNoSensor.
func (c *CappedCollection) GetPackets(key SensorKey, t0, t1 int64) ([]Packet, error) {
	name := key.String()

	c.mu.RLock()
	r, ok := c.rings[name]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNoSensor
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer.GetRange(t0, t1), nil
}

// GetPacketsFrom is the single-bound overload: get_packets(key, t0) uses
// t1 = +∞.
func (c *CappedCollection) GetPacketsFrom(key SensorKey, t0 int64) ([]Packet, error) {
	return c.GetPackets(key, t0, maxStartTime)
}

// maxStartTime stands in for +∞ when only a lower bound is given.
const maxStartTime = int64(1<<63 - 1)

// SensorNames returns the set of currently populated sensor keys.
func (c *CappedCollection) SensorNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.rings))
	for name := range c.rings {
		names = append(names, name)
	}
	return names
}
