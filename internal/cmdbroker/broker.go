// Package cmdbroker implements the addressed command broker: a ROUTER
// frontend operators connect to and a ROUTER backend modules connect
// to, joined by a worker registry that maps module name to backend
// routing identity, plus a heartbeat sweeper that pings idle workers
// and evicts unresponsive ones.
package cmdbroker

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/uofuseismo/umps-go/internal/cmdmsg"
	"github.com/uofuseismo/umps-go/internal/errs"
	"github.com/uofuseismo/umps-go/internal/transport"
	"github.com/uofuseismo/umps-go/internal/wire"
)

var errIntervalsNotSorted = fmt.Errorf("ping_intervals must be strictly increasing")

// Config names the two bind addresses and the heartbeat cadence.
type Config struct {
	FrontendAddress string
	BackendAddress  string

	FrontendAuth transport.Authentication
	BackendAuth  transport.Authentication

	PollingTimeout time.Duration

	// PingIntervals is the strictly-increasing list I₁ < I₂ < ... < Iₖ
	// the heartbeat sweeper escalates through.
	PingIntervals []time.Duration
	// Grace is added to the largest ping interval before a worker is
	// evicted for unresponsiveness.
	Grace time.Duration
	// SweepInterval is how often the registry is swept.
	SweepInterval time.Duration

	Registry *wire.Registry
}

// worker is one registered module's liveness and routing record.
type worker struct {
	identity     string // backend ROUTER connection identity
	name         string
	lastResponse time.Time
	lastPing     time.Time
	stageSent    []bool
}

// Broker is a running command proxy with its worker registry and
// heartbeat sweeper.
type Broker struct {
	cfg Config

	frontend transport.Socket
	backend  transport.Socket

	mu      sync.Mutex
	workers map[string]*worker // keyed by module name

	done chan struct{}
	wg   sync.WaitGroup
}

// Open binds both sockets, registers the command-plane codecs, and
// starts the frontend loop, backend loop, and heartbeat sweeper.
func Open(cfg Config) (*Broker, error) {
	if cfg.PollingTimeout <= 0 {
		cfg.PollingTimeout = 100 * time.Millisecond
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 100 * time.Millisecond
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 100 * time.Millisecond
	}
	if len(cfg.PingIntervals) == 0 {
		cfg.PingIntervals = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}
	}
	if !pingIntervalsSorted(cfg.PingIntervals) {
		return nil, &errs.ConfigError{Field: "ping_intervals", Err: errIntervalsNotSorted}
	}
	if cfg.Registry == nil {
		cfg.Registry = wire.NewRegistry()
		if err := cmdmsg.RegisterAll(cfg.Registry); err != nil {
			return nil, err
		}
	}

	frontend, err := transport.Bind(transport.KindRouter, transport.Options{
		Address:        cfg.FrontendAddress,
		Auth:           cfg.FrontendAuth,
		PollingTimeout: cfg.PollingTimeout,
	})
	if err != nil {
		return nil, err
	}
	backend, err := transport.Bind(transport.KindRouter, transport.Options{
		Address:        cfg.BackendAddress,
		Auth:           cfg.BackendAuth,
		PollingTimeout: cfg.PollingTimeout,
	})
	if err != nil {
		frontend.Close()
		return nil, err
	}

	b := &Broker{
		cfg:      cfg,
		frontend: frontend,
		backend:  backend,
		workers:  make(map[string]*worker),
		done:     make(chan struct{}),
	}

	b.wg.Add(3)
	go b.frontendLoop()
	go b.backendLoop()
	go b.sweepLoop()
	return b, nil
}

func (b *Broker) encode(tag string, v interface{}) (wire.Message, bool) {
	msg, err := wire.Encode(tag, v)
	if err != nil {
		log.Printf("cmdbroker: encode %s: %v", tag, err)
		return wire.Message{}, false
	}
	return msg, true
}

func (b *Broker) decode(tag string, body []byte) (interface{}, bool) {
	decoded, err := b.cfg.Registry.Decode(wire.Message{Tag: tag, Body: body})
	if err != nil {
		return nil, false
	}
	return decoded, true
}

// frontendLoop handles an operator message of shape
// [client_addr, empty, type_tag, body].
func (b *Broker) frontendLoop() {
	defer b.wg.Done()
	for {
		frames, err := b.frontend.Receive()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			log.Printf("cmdbroker: frontend receive error: %v", err)
			continue
		}
		// frames[0] is the operator's ROUTER connection identity, added
		// by the transport; the remainder is the application message.
		if len(frames) < 3 {
			log.Printf("cmdbroker: frontend short frame set %v", frames)
			continue
		}
		clientAddr := frames[0]
		tag := string(frames[2])

		if tag == cmdmsg.TagAvailableModulesRequest {
			if len(frames) != 4 {
				log.Printf("cmdbroker: frontend expected 4 frames for AvailableModulesRequest, got %d", len(frames))
				continue
			}
			decoded, ok := b.decode(tag, frames[3])
			if !ok {
				continue
			}
			req := decoded.(*cmdmsg.AvailableModulesRequest)
			resp := cmdmsg.NewAvailableModulesResponse(req.ID, b.snapshotIdentities())
			out, ok := b.encode(cmdmsg.TagAvailableModulesResponse, resp)
			if !ok {
				continue
			}
			b.replyToClient(clientAddr, out)
			continue
		}

		if len(frames) != 5 {
			log.Printf("cmdbroker: frontend expected 5 frames for %s, got %d", tag, len(frames))
			continue
		}
		moduleName := string(frames[3])
		body := frames[4]

		b.mu.Lock()
		w, ok := b.workers[moduleName]
		b.mu.Unlock()
		if !ok {
			out, ok := b.encode(cmdmsg.TagFailure, cmdmsg.NewFailure("Unknown module: "+moduleName))
			if ok {
				b.replyToClient(clientAddr, out)
			}
			continue
		}

		if err := b.backend.Send([][]byte{
			[]byte(w.identity), clientAddr, nil, []byte(tag), body,
		}); err != nil {
			log.Printf("cmdbroker: dispatch to %s: %v", moduleName, err)
		}
	}
}

func (b *Broker) replyToClient(clientAddr []byte, msg wire.Message) {
	if err := b.frontend.Send([][]byte{clientAddr, nil, []byte(msg.Tag), msg.Body}); err != nil {
		log.Printf("cmdbroker: reply to client: %v", err)
	}
}

func (b *Broker) snapshotIdentities() []cmdmsg.ModuleIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]cmdmsg.ModuleIdentity, 0, len(b.workers))
	for name := range b.workers {
		out = append(out, cmdmsg.ModuleIdentity{Name: name})
	}
	return out
}

// backendLoop handles registration, heartbeat replies, and reply
// forwarding from the module-side ROUTER.
func (b *Broker) backendLoop() {
	defer b.wg.Done()
	for {
		frames, err := b.backend.Receive()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			log.Printf("cmdbroker: backend receive error: %v", err)
			continue
		}
		if len(frames) < 3 {
			log.Printf("cmdbroker: backend short frame set %v", frames)
			continue
		}
		identity := string(frames[0])
		b.touch(identity)

		switch len(frames) {
		case 3:
			b.handleBareBackend(identity, string(frames[1]), frames[2])
		case 5:
			// Strip the broker's own routing frame and forward the
			// rest to the frontend untouched.
			if err := b.frontend.Send(frames[1:]); err != nil {
				log.Printf("cmdbroker: forward reply to frontend: %v", err)
			}
		default:
			log.Printf("cmdbroker: backend unexpected frame count %d", len(frames))
		}
	}
}

func (b *Broker) handleBareBackend(identity, tag string, body []byte) {
	switch tag {
	case cmdmsg.TagRegistrationRequest:
		decoded, ok := b.decode(tag, body)
		if !ok {
			return
		}
		req := decoded.(*cmdmsg.RegistrationRequest)
		code := b.applyRegistration(identity, req)
		out, ok := b.encode(cmdmsg.TagRegistrationResponse, cmdmsg.NewRegistrationResponse(code))
		if ok {
			_ = b.backend.Send([][]byte{[]byte(identity), []byte(out.Tag), out.Body})
		}
	case cmdmsg.TagPingResponse, cmdmsg.TagTerminateResponse:
		// touch() above already refreshed last_response; a
		// TerminateResponse also means the worker is shutting down on
		// its own initiative, so drop it from the registry.
		if tag == cmdmsg.TagTerminateResponse {
			b.evictByIdentity(identity)
		}
	default:
		log.Printf("cmdbroker: unexpected bare backend tag %s", tag)
	}
}

// applyRegistration registers or deregisters a worker by module name.
func (b *Broker) applyRegistration(identity string, req *cmdmsg.RegistrationRequest) cmdmsg.RegistrationCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := req.Identity.Name

	switch req.Action {
	case cmdmsg.ActionRegister:
		if _, exists := b.workers[name]; exists {
			return cmdmsg.RegistrationExists
		}
		b.workers[name] = &worker{identity: identity, name: name, lastResponse: now()}
		return cmdmsg.RegistrationSuccess
	case cmdmsg.ActionDeregister:
		delete(b.workers, name)
		return cmdmsg.RegistrationSuccess
	default:
		return cmdmsg.RegistrationInvalidRequest
	}
}

func (b *Broker) evictByIdentity(identity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, w := range b.workers {
		if w.identity == identity {
			delete(b.workers, name)
			return
		}
	}
}

// touch refreshes last_response for the worker owning identity and
// clears its ping stage flags: any response, not just a pong, proves
// liveness and resets the escalation ladder.
func (b *Broker) touch(identity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.workers {
		if w.identity == identity {
			w.lastResponse = now()
			for i := range w.stageSent {
				w.stageSent[i] = false
			}
			return
		}
	}
}

// now is a seam over time.Now() so heartbeat arithmetic is easy to stub
// in tests.
func now() time.Time { return time.Now() }

func (b *Broker) sweepLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.sweepOnce()
		}
	}
}

func (b *Broker) sweepOnce() {
	type outgoing struct {
		identity string
		msg      wire.Message
	}
	var pings []outgoing
	var terminates []outgoing

	deadline := b.cfg.PingIntervals[len(b.cfg.PingIntervals)-1] + b.cfg.Grace

	b.mu.Lock()
	for name, w := range b.workers {
		delta := time.Since(w.lastResponse)
		if delta > deadline {
			out, ok := b.encode(cmdmsg.TagTerminateRequest, cmdmsg.NewTerminateRequest())
			if ok {
				terminates = append(terminates, outgoing{identity: w.identity, msg: out})
			}
			delete(b.workers, name)
			log.Printf("cmdbroker: evicting unresponsive module %s", name)
			continue
		}
		if w.stageSent == nil {
			w.stageSent = make([]bool, len(b.cfg.PingIntervals))
		}
		for i, interval := range b.cfg.PingIntervals {
			if delta > interval && !w.stageSent[i] {
				out, ok := b.encode(cmdmsg.TagPingRequest, cmdmsg.NewPingRequest(now().UnixMilli()))
				if ok {
					pings = append(pings, outgoing{identity: w.identity, msg: out})
				}
				w.stageSent[i] = true
				w.lastPing = now()
				break
			}
		}
	}
	b.mu.Unlock()

	for _, p := range pings {
		// "To worker (ping/terminate): [worker_addr, worker_addr, empty,
		// type_tag, body]" — the second copy is the reply-to address.
		if err := b.backend.Send([][]byte{[]byte(p.identity), []byte(p.identity), nil, []byte(p.msg.Tag), p.msg.Body}); err != nil {
			log.Printf("cmdbroker: send ping: %v", err)
		}
	}
	for _, t := range terminates {
		if err := b.backend.Send([][]byte{[]byte(t.identity), []byte(t.identity), nil, []byte(t.msg.Tag), t.msg.Body}); err != nil {
			log.Printf("cmdbroker: send terminate: %v", err)
		}
	}
}

// pingIntervalsSorted validates that the configured intervals are
// strictly increasing, which the sweeper's in-order scan for "smallest i
// such that Δ > Iᵢ" relies on. The comparison passed to SliceIsSorted is
// <=, so two equal neighbours count as out of order.
func pingIntervalsSorted(intervals []time.Duration) bool {
	return sort.SliceIsSorted(intervals, func(i, j int) bool { return intervals[i] <= intervals[j] })
}

// Close sends TerminateRequest to every remaining worker, waits
// polling_timeout for their responses while the loops keep running,
// logs any worker still registered, then stops the sweeper and both
// loops and closes both sockets.
func (b *Broker) Close() {
	b.mu.Lock()
	remaining := make([]*worker, 0, len(b.workers))
	for _, w := range b.workers {
		remaining = append(remaining, w)
	}
	b.mu.Unlock()

	for _, w := range remaining {
		out, ok := b.encode(cmdmsg.TagTerminateRequest, cmdmsg.NewTerminateRequest())
		if !ok {
			continue
		}
		_ = b.backend.Send([][]byte{[]byte(w.identity), []byte(w.identity), nil, []byte(out.Tag), out.Body})
	}
	if len(remaining) > 0 {
		time.Sleep(b.cfg.PollingTimeout)
		b.mu.Lock()
		if n := len(b.workers); n > 0 {
			log.Printf("cmdbroker: %d worker(s) did not acknowledge termination", n)
		}
		b.mu.Unlock()
	}

	close(b.done)
	// The loops block in Receive; closing the sockets first wakes them so
	// they observe done and return.
	b.frontend.Close()
	b.backend.Close()
	b.wg.Wait()
}
