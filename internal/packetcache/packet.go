// Package packetcache implements a capped per-sensor waveform packet
// cache: a bounded ring of packets per sensor key with back-fill
// insertion and time-range retrieval, plus the wire surface that exposes
// it as a broker-backed service.
package packetcache

import "strings"

// SensorKey is the (network, station, channel, location) tuple that
// identifies one waveform stream.
type SensorKey struct {
	Network  string
	Station  string
	Channel  string
	Location string
}

// String renders the key as the dot-joined form used as the cache's map
// key and as SensorResponse entries ("UU.FORK.HHZ.01").
func (k SensorKey) String() string {
	return strings.Join([]string{k.Network, k.Station, k.Channel, k.Location}, ".")
}

// Packet is a waveform packet. StartTime is microseconds since the
// epoch; SamplingRate is in samples per second.
type Packet struct {
	Network      string    `cbor:"Network" json:"Network"`
	Station      string    `cbor:"Station" json:"Station"`
	Channel      string    `cbor:"Channel" json:"Channel"`
	Location     string    `cbor:"Location" json:"Location"`
	SamplingRate float64   `cbor:"SamplingRate" json:"SamplingRate"`
	StartTime    int64     `cbor:"StartTime" json:"StartTime"`
	SampleCount  int       `cbor:"SampleCount" json:"SampleCount"`
	Payload      []float64 `cbor:"Payload" json:"Payload"`
}

// Key returns the packet's sensor key.
func (p Packet) Key() SensorKey {
	return SensorKey{Network: p.Network, Station: p.Station, Channel: p.Channel, Location: p.Location}
}

// EndTime derives the packet's end time in microseconds:
// start + (sampleCount-1)/rate.
func (p Packet) EndTime() int64 {
	if p.SampleCount <= 1 {
		return p.StartTime
	}
	durationSeconds := float64(p.SampleCount-1) / p.SamplingRate
	return p.StartTime + int64(durationSeconds*1e6)
}

// Valid reports whether the packet is well-formed: network, station,
// channel, location, and sampling rate must be set, sampling rate must
// be positive, and there must be at least one sample.
func (p Packet) Valid() bool {
	if p.Network == "" || p.Station == "" || p.Channel == "" || p.Location == "" {
		return false
	}
	if p.SamplingRate <= 0 {
		return false
	}
	if p.SampleCount < 1 {
		return false
	}
	return true
}
