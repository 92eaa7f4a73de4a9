// Package cmdmsg implements the command-plane message types: module
// registration, available-modules discovery, command dispatch,
// termination, heartbeat, and generic failure. Each type embeds
// wire.Envelope so its encoded body always carries the
// MessageType/MessageVersion fields.
package cmdmsg

import "github.com/uofuseismo/umps-go/internal/wire"

// ModuleIdentity is a module's identity tuple. Name identifies the
// module class; (Name, Instance) identifies a running process within the
// fleet. The local module table (internal/moduletable) keys on Name
// alone for the single-host case.
type ModuleIdentity struct {
	Name       string `cbor:"Name" json:"Name"`
	Instance   uint32 `cbor:"Instance" json:"Instance"`
	Executable string `cbor:"Executable" json:"Executable"`
	Machine    string `cbor:"Machine" json:"Machine"`
	Pid        int64  `cbor:"Pid" json:"Pid"`
	Ppid       int64  `cbor:"Ppid" json:"Ppid"`
}

// Action selects Register or Deregister in a RegistrationRequest.
type Action int

const (
	ActionRegister Action = iota
	ActionDeregister
)

// RegistrationCode is the result of a RegistrationRequest. There is no
// dedicated terminate code set, so TerminateResponse reuses this enum.
type RegistrationCode int

const (
	RegistrationSuccess RegistrationCode = iota
	RegistrationInvalidRequest
	RegistrationExists
	RegistrationServerError
)

// CommandCode is the result of a CommandRequest.
type CommandCode int

const (
	CommandSuccess CommandCode = iota
	CommandInvalidCommand
	CommandApplicationError
)

const (
	TagRegistrationRequest      = "UMPS.ProxyServices.Command.RegistrationRequest"
	TagRegistrationResponse     = "UMPS.ProxyServices.Command.RegistrationResponse"
	TagAvailableModulesRequest  = "UMPS.ProxyServices.Command.AvailableModulesRequest"
	TagAvailableModulesResponse = "UMPS.ProxyServices.Command.AvailableModulesResponse"
	TagCommandRequest           = "UMPS.ProxyServices.Command.CommandRequest"
	TagCommandResponse          = "UMPS.ProxyServices.Command.CommandResponse"
	TagTerminateRequest         = "UMPS.ProxyServices.Command.TerminateRequest"
	TagTerminateResponse        = "UMPS.ProxyServices.Command.TerminateResponse"
	TagPingRequest              = "UMPS.ProxyServices.Command.PingRequest"
	TagPingResponse             = "UMPS.ProxyServices.Command.PingResponse"
	TagFailure                  = "UMPS.ProxyServices.Command.Failure"
)

// RegistrationRequest asks the command broker's backend to register or
// deregister a worker identity.
type RegistrationRequest struct {
	wire.Envelope
	Identity ModuleIdentity `cbor:"Identity" json:"Identity"`
	Action   Action         `cbor:"Action" json:"Action"`
}

// NewRegistrationRequest builds a tagged RegistrationRequest.
func NewRegistrationRequest(identity ModuleIdentity, action Action) RegistrationRequest {
	return RegistrationRequest{
		Envelope: wire.NewEnvelope(TagRegistrationRequest),
		Identity: identity,
		Action:   action,
	}
}

// RegistrationResponse answers a RegistrationRequest.
type RegistrationResponse struct {
	wire.Envelope
	ReturnCode RegistrationCode `cbor:"ReturnCode" json:"ReturnCode"`
}

func NewRegistrationResponse(code RegistrationCode) RegistrationResponse {
	return RegistrationResponse{Envelope: wire.NewEnvelope(TagRegistrationResponse), ReturnCode: code}
}

// AvailableModulesRequest asks the command broker's frontend for the set
// of currently registered module identities. It is answered directly
// from the registry, with no backend round-trip. The command broker's
// registry keeps only each module's Name, so every returned identity has
// Name set and its other fields empty.
type AvailableModulesRequest struct {
	wire.Envelope
	ID uint64 `cbor:"Id" json:"Id"`
}

func NewAvailableModulesRequest(id uint64) AvailableModulesRequest {
	return AvailableModulesRequest{Envelope: wire.NewEnvelope(TagAvailableModulesRequest), ID: id}
}

type AvailableModulesResponse struct {
	wire.Envelope
	Identities []ModuleIdentity `cbor:"Identities" json:"Identities"`
	ID         uint64           `cbor:"Id" json:"Id"`
}

func NewAvailableModulesResponse(id uint64, identities []ModuleIdentity) AvailableModulesResponse {
	return AvailableModulesResponse{
		Envelope:   wire.NewEnvelope(TagAvailableModulesResponse),
		Identities: identities,
		ID:         id,
	}
}

// CommandRequest is an operator command addressed to a named module.
type CommandRequest struct {
	wire.Envelope
	CommandText string `cbor:"CommandText" json:"CommandText"`
}

func NewCommandRequest(text string) CommandRequest {
	return CommandRequest{Envelope: wire.NewEnvelope(TagCommandRequest), CommandText: text}
}

type CommandResponse struct {
	wire.Envelope
	ResponseText string      `cbor:"ResponseText" json:"ResponseText"`
	ReturnCode   CommandCode `cbor:"ReturnCode" json:"ReturnCode"`
}

func NewCommandResponse(text string, code CommandCode) CommandResponse {
	return CommandResponse{Envelope: wire.NewEnvelope(TagCommandResponse), ResponseText: text, ReturnCode: code}
}

// TerminateRequest asks a worker (or, on broker shutdown, every
// remaining worker) to shut down.
type TerminateRequest struct {
	wire.Envelope
}

func NewTerminateRequest() TerminateRequest {
	return TerminateRequest{Envelope: wire.NewEnvelope(TagTerminateRequest)}
}

type TerminateResponse struct {
	wire.Envelope
	ReturnCode RegistrationCode `cbor:"ReturnCode" json:"ReturnCode"`
}

func NewTerminateResponse(code RegistrationCode) TerminateResponse {
	return TerminateResponse{Envelope: wire.NewEnvelope(TagTerminateResponse), ReturnCode: code}
}

// PingRequest/PingResponse are the broker-internal liveness probes.
// TimeMs round-trips the probe time so a future implementation could
// measure round-trip latency; a worker only needs to carry the same
// time back in its reply.
type PingRequest struct {
	wire.Envelope
	TimeMs int64 `cbor:"TimeMs" json:"TimeMs"`
}

func NewPingRequest(timeMs int64) PingRequest {
	return PingRequest{Envelope: wire.NewEnvelope(TagPingRequest), TimeMs: timeMs}
}

type PingResponse struct {
	wire.Envelope
	TimeMs int64 `cbor:"TimeMs" json:"TimeMs"`
}

func NewPingResponse(timeMs int64) PingResponse {
	return PingResponse{Envelope: wire.NewEnvelope(TagPingResponse), TimeMs: timeMs}
}

// Failure is synthesized by a broker when it cannot fulfill a request
// itself, e.g. an unknown module name.
type Failure struct {
	wire.Envelope
	Detail string `cbor:"Detail" json:"Detail"`
}

func NewFailure(detail string) Failure {
	return Failure{Envelope: wire.NewEnvelope(TagFailure), Detail: detail}
}

// RegisterAll registers every command-plane type's constructor with reg.
// Called once at process start.
func RegisterAll(reg *wire.Registry) error {
	ctors := map[string]wire.Constructor{
		TagRegistrationRequest:      func() interface{} { return &RegistrationRequest{} },
		TagRegistrationResponse:     func() interface{} { return &RegistrationResponse{} },
		TagAvailableModulesRequest:  func() interface{} { return &AvailableModulesRequest{} },
		TagAvailableModulesResponse: func() interface{} { return &AvailableModulesResponse{} },
		TagCommandRequest:           func() interface{} { return &CommandRequest{} },
		TagCommandResponse:          func() interface{} { return &CommandResponse{} },
		TagTerminateRequest:         func() interface{} { return &TerminateRequest{} },
		TagTerminateResponse:        func() interface{} { return &TerminateResponse{} },
		TagPingRequest:              func() interface{} { return &PingRequest{} },
		TagPingResponse:             func() interface{} { return &PingResponse{} },
		TagFailure:                  func() interface{} { return &Failure{} },
	}
	for tag, ctor := range ctors {
		if err := reg.Register(tag, ctor); err != nil {
			return err
		}
	}
	return nil
}
