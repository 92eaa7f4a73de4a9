package packetcache

import (
	"sync"
	"testing"
)

func onePacket(station string, startTime int64) Packet {
	return Packet{
		Network: "UU", Station: station, Channel: "HHZ", Location: "01",
		SamplingRate: 1.0, StartTime: startTime, SampleCount: 1, Payload: []float64{0},
	}
}

func TestCappedCollection_RangeQuery(t *testing.T) {
	c := NewCappedCollection(10)
	key := SensorKey{Network: "UU", Station: "FORK", Channel: "HHZ", Location: "01"}
	for i := int64(0); i < 20; i++ {
		p := Packet{Network: "UU", Station: "FORK", Channel: "HHZ", Location: "01",
			SamplingRate: 1.0, StartTime: i * 1_000_000, SampleCount: 1, Payload: []float64{0}}
		if err := c.AddPacket(p); err != nil {
			t.Fatalf("AddPacket(%d): %v", i, err)
		}
	}

	got, err := c.GetPackets(key, 9_000001, 14_999999)
	if err != nil {
		t.Fatalf("GetPackets: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 packets, got %d", len(got))
	}
	want := []int64{10_000000, 11_000000, 12_000000, 13_000000, 14_000000}
	for i, p := range got {
		if p.StartTime != want[i] {
			t.Errorf("result[%d].StartTime = %d, want %d", i, p.StartTime, want[i])
		}
	}
}

func TestCappedCollection_BackfillOverwrite(t *testing.T) {
	c := NewCappedCollection(10)
	key := SensorKey{Network: "UU", Station: "FORK", Channel: "HHZ", Location: "01"}

	first := onePacket("FORK", 0)
	second5 := onePacket("FORK", 5_000000)
	second5.Payload = []float64{1}
	third5 := onePacket("FORK", 5_000000)
	third5.Payload = []float64{2}

	for _, p := range []Packet{first, second5, third5} {
		if err := c.AddPacket(p); err != nil {
			t.Fatalf("AddPacket: %v", err)
		}
	}

	got, err := c.GetPackets(key, -1, 10_000000)
	if err != nil {
		t.Fatalf("GetPackets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected ring size 2, got %d", len(got))
	}
	if got[1].Payload[0] != 2 {
		t.Errorf("expected the second insertion's payload to win, got %v", got[1].Payload)
	}
}

func TestCappedCollection_SensorNames(t *testing.T) {
	c := NewCappedCollection(10)
	for _, ch := range []string{"HHZ", "HHN", "HHE"} {
		p := Packet{Network: "UU", Station: "FORK", Channel: ch, Location: "01",
			SamplingRate: 100, StartTime: 0, SampleCount: 1, Payload: []float64{0}}
		if err := c.AddPacket(p); err != nil {
			t.Fatalf("AddPacket: %v", err)
		}
	}

	names := c.SensorNames()
	want := map[string]bool{"UU.FORK.HHZ.01": true, "UU.FORK.HHN.01": true, "UU.FORK.HHE.01": true}
	if len(names) != len(want) {
		t.Fatalf("expected %d sensors, got %d (%v)", len(want), len(names), names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected sensor name %q", n)
		}
	}
}

// Capacity is never exceeded; after N+k increasing inserts the ring
// holds the last N.
func TestCircularBuffer_CapacityEviction(t *testing.T) {
	b := NewCircularBuffer(5)
	for i := int64(0); i < 8; i++ {
		b.Add(Packet{StartTime: i})
	}
	if b.Len() != 5 {
		t.Fatalf("expected len 5, got %d", b.Len())
	}
	got := b.GetRange(-1, 1<<62)
	want := []int64{3, 4, 5, 6, 7}
	for i, p := range got {
		if p.StartTime != want[i] {
			t.Errorf("result[%d].StartTime = %d, want %d", i, p.StartTime, want[i])
		}
	}
}

// Identical start times dedup, newest wins.
func TestCircularBuffer_Dedup(t *testing.T) {
	b := NewCircularBuffer(5)
	b.Add(Packet{StartTime: 5, SampleCount: 1})
	b.Add(Packet{StartTime: 5, SampleCount: 2})
	if b.Len() != 1 {
		t.Fatalf("expected len 1, got %d", b.Len())
	}
	got := b.GetRange(-1, 10)
	if got[0].SampleCount != 2 {
		t.Errorf("expected the second insertion to win, got SampleCount=%d", got[0].SampleCount)
	}
}

// A backfill insert that lands in the middle of a full ring must evict
// the oldest packet, not the newest, when it pushes the ring over
// capacity.
func TestCircularBuffer_BackfillOverflowEvictsOldest(t *testing.T) {
	b := NewCircularBuffer(3)
	b.Add(Packet{StartTime: 1})
	b.Add(Packet{StartTime: 3})
	b.Add(Packet{StartTime: 5})

	b.Add(Packet{StartTime: 2})

	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	got := b.GetRange(-1, 1<<62)
	want := []int64{2, 3, 5}
	for i, p := range got {
		if p.StartTime != want[i] {
			t.Errorf("result[%d].StartTime = %d, want %d", i, p.StartTime, want[i])
		}
	}
}

func TestCappedCollection_InvalidPacketRejected(t *testing.T) {
	c := NewCappedCollection(5)
	bad := Packet{Station: "FORK", SamplingRate: 100, SampleCount: 0}
	if err := c.AddPacket(bad); err != ErrInvalidPacket {
		t.Fatalf("expected ErrInvalidPacket, got %v", err)
	}
}

func TestCappedCollection_NoSensor(t *testing.T) {
	c := NewCappedCollection(5)
	_, err := c.GetPackets(SensorKey{Network: "X", Station: "Y", Channel: "Z", Location: "00"}, 0, 1)
	if err != ErrNoSensor {
		t.Fatalf("expected ErrNoSensor, got %v", err)
	}
}

// Ordering survives concurrent interleaving of inserts and queries.
func TestCappedCollection_ConcurrentOrdering(t *testing.T) {
	c := NewCappedCollection(200)
	key := SensorKey{Network: "UU", Station: "FORK", Channel: "HHZ", Location: "01"}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := int64(0); i < 100; i++ {
				c.AddPacket(Packet{
					Network: "UU", Station: "FORK", Channel: "HHZ", Location: "01",
					SamplingRate: 1, StartTime: int64(worker)*1000 + i, SampleCount: 1, Payload: []float64{0},
				})
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			c.GetPackets(key, 0, 1<<62)
		}
		close(done)
	}()
	wg.Wait()
	<-done

	got, err := c.GetPackets(key, -1, 1<<62)
	if err != nil {
		t.Fatalf("GetPackets: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].StartTime >= got[i].StartTime {
			t.Fatalf("result not strictly sorted at index %d: %d >= %d", i, got[i-1].StartTime, got[i].StartTime)
		}
	}
}
