package packetcache

import (
	"fmt"

	"github.com/uofuseismo/umps-go/internal/wire"
)

// ReturnCode is the wire-level outcome of a packet-cache request.
type ReturnCode int

const (
	Success ReturnCode = iota
	NoSensor
	InvalidMessage
	InvalidMessageType
	AlgorithmFailure
)

const (
	TagDataRequest      = "UMPS.ProxyServices.PacketCache.DataRequest"
	TagDataResponse     = "UMPS.ProxyServices.PacketCache.DataResponse"
	TagBulkDataRequest  = "UMPS.ProxyServices.PacketCache.BulkDataRequest"
	TagBulkDataResponse = "UMPS.ProxyServices.PacketCache.BulkDataResponse"
	TagSensorRequest    = "UMPS.ProxyServices.PacketCache.SensorRequest"
	TagSensorResponse   = "UMPS.ProxyServices.PacketCache.SensorResponse"
)

// DataRequest asks for packets of one sensor in a time window.
type DataRequest struct {
	wire.Envelope
	SensorKey string `cbor:"SensorKey" json:"SensorKey"`
	T0        int64  `cbor:"T0" json:"T0"`
	T1        int64  `cbor:"T1" json:"T1"`
	ID        uint64 `cbor:"Id" json:"Id"`
}

func NewDataRequest(sensorKey string, t0, t1 int64, id uint64) DataRequest {
	return DataRequest{Envelope: wire.NewEnvelope(TagDataRequest), SensorKey: sensorKey, T0: t0, T1: t1, ID: id}
}

// equalWindow reports whether two DataRequests address the same sensor,
// window, and id — the dedup key used by BulkDataRequestBuilder.
func (r DataRequest) equalWindow(o DataRequest) bool {
	return r.SensorKey == o.SensorKey && r.T0 == o.T0 && r.T1 == o.T1 && r.ID == o.ID
}

type DataResponse struct {
	wire.Envelope
	Packets    []Packet   `cbor:"Packets" json:"Packets"`
	ID         uint64     `cbor:"Id" json:"Id"`
	ReturnCode ReturnCode `cbor:"ReturnCode" json:"ReturnCode"`
}

func NewDataResponse(id uint64, packets []Packet, code ReturnCode) DataResponse {
	return DataResponse{Envelope: wire.NewEnvelope(TagDataResponse), Packets: packets, ID: id, ReturnCode: code}
}

// BulkDataRequest batches several DataRequests into one round trip.
type BulkDataRequest struct {
	wire.Envelope
	Requests []DataRequest `cbor:"Requests" json:"Requests"`
	ID       uint64        `cbor:"Id" json:"Id"`
}

type BulkDataResponse struct {
	wire.Envelope
	Responses  []DataResponse `cbor:"Responses" json:"Responses"`
	ID         uint64         `cbor:"Id" json:"Id"`
	ReturnCode ReturnCode     `cbor:"ReturnCode" json:"ReturnCode"`
}

func NewBulkDataResponse(id uint64, responses []DataResponse, code ReturnCode) BulkDataResponse {
	return BulkDataResponse{Envelope: wire.NewEnvelope(TagBulkDataResponse), Responses: responses, ID: id, ReturnCode: code}
}

// BulkDataRequestBuilder accumulates DataRequests for a single
// BulkDataRequest, rejecting an exact duplicate (same key, window, and
// id).
type BulkDataRequestBuilder struct {
	id       uint64
	requests []DataRequest
}

func NewBulkDataRequestBuilder(id uint64) *BulkDataRequestBuilder {
	return &BulkDataRequestBuilder{id: id}
}

func (b *BulkDataRequestBuilder) Add(r DataRequest) error {
	for _, existing := range b.requests {
		if existing.equalWindow(r) {
			return fmt.Errorf("packetcache: duplicate request for sensor %q window [%d,%d] id %d", r.SensorKey, r.T0, r.T1, r.ID)
		}
	}
	b.requests = append(b.requests, r)
	return nil
}

func (b *BulkDataRequestBuilder) Build() BulkDataRequest {
	return BulkDataRequest{Envelope: wire.NewEnvelope(TagBulkDataRequest), Requests: b.requests, ID: b.id}
}

// SensorRequest asks for the set of currently populated sensor keys.
type SensorRequest struct {
	wire.Envelope
	ID uint64 `cbor:"Id" json:"Id"`
}

func NewSensorRequest(id uint64) SensorRequest {
	return SensorRequest{Envelope: wire.NewEnvelope(TagSensorRequest), ID: id}
}

type SensorResponse struct {
	wire.Envelope
	Names      []string   `cbor:"Names" json:"Names"`
	ID         uint64     `cbor:"Id" json:"Id"`
	ReturnCode ReturnCode `cbor:"ReturnCode" json:"ReturnCode"`
}

func NewSensorResponse(id uint64, names []string, code ReturnCode) SensorResponse {
	return SensorResponse{Envelope: wire.NewEnvelope(TagSensorResponse), Names: names, ID: id, ReturnCode: code}
}

// RegisterAll registers every packet-cache wire type's constructor.
func RegisterAll(reg *wire.Registry) error {
	ctors := map[string]wire.Constructor{
		TagDataRequest:      func() interface{} { return &DataRequest{} },
		TagDataResponse:     func() interface{} { return &DataResponse{} },
		TagBulkDataRequest:  func() interface{} { return &BulkDataRequest{} },
		TagBulkDataResponse: func() interface{} { return &BulkDataResponse{} },
		TagSensorRequest:    func() interface{} { return &SensorRequest{} },
		TagSensorResponse:   func() interface{} { return &SensorResponse{} },
	}
	for tag, ctor := range ctors {
		if err := reg.Register(tag, ctor); err != nil {
			return err
		}
	}
	return nil
}

// Service answers packet-cache requests against a CappedCollection. It
// is the handler a replyengine.Engine invokes per request, and it always
// returns a reply, even on error, so the requester's correlator is never
// left stranded.
type Service struct {
	cache *CappedCollection
}

func NewService(cache *CappedCollection) *Service {
	return &Service{cache: cache}
}

// parseSensorKey splits the dotted "network.station.channel.location"
// form back into a SensorKey.
func parseSensorKey(s string) (SensorKey, error) {
	parts := splitDot(s)
	if len(parts) != 4 {
		return SensorKey{}, fmt.Errorf("packetcache: malformed sensor key %q", s)
	}
	return SensorKey{Network: parts[0], Station: parts[1], Channel: parts[2], Location: parts[3]}, nil
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// Handle dispatches a decoded request to the matching operation and
// always returns a reply value (never nil), satisfying the "reply for
// every request" invariant even when the request itself is malformed.
func (s *Service) Handle(tag string, body interface{}) interface{} {
	switch req := body.(type) {
	case *DataRequest:
		return s.handleData(*req)
	case *BulkDataRequest:
		return s.handleBulk(*req)
	case *SensorRequest:
		return s.handleSensors(*req)
	default:
		return NewDataResponse(0, nil, InvalidMessageType)
	}
}

func (s *Service) handleData(req DataRequest) DataResponse {
	key, err := parseSensorKey(req.SensorKey)
	if err != nil {
		return NewDataResponse(req.ID, nil, InvalidMessage)
	}
	packets, err := s.cache.GetPackets(key, req.T0, req.T1)
	if err == ErrNoSensor {
		return NewDataResponse(req.ID, nil, NoSensor)
	}
	if err != nil {
		return NewDataResponse(req.ID, nil, AlgorithmFailure)
	}
	return NewDataResponse(req.ID, packets, Success)
}

func (s *Service) handleBulk(req BulkDataRequest) BulkDataResponse {
	responses := make([]DataResponse, len(req.Requests))
	for i, r := range req.Requests {
		responses[i] = s.handleData(r)
	}
	return NewBulkDataResponse(req.ID, responses, Success)
}

func (s *Service) handleSensors(req SensorRequest) SensorResponse {
	names := s.cache.SensorNames()
	return NewSensorResponse(req.ID, names, Success)
}
