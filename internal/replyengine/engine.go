// Package replyengine implements a worker-side poll loop: a DEALER
// socket connected to a broker's backend, dispatching each decoded
// request to a caller-supplied handler and replying with whatever the
// handler returns.
package replyengine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/uofuseismo/umps-go/internal/cmdmsg"
	"github.com/uofuseismo/umps-go/internal/transport"
	"github.com/uofuseismo/umps-go/internal/wire"
)

// Role selects the frame shape a worker expects.
type Role int

const (
	// RoleLoadBalanced is a reqrep worker's shape. The DEALER backend
	// forwards the frontend ROUTER's connection identity ahead of the
	// message content; the engine strips it before handing the request
	// to the handler and re-prepends it on reply.
	RoleLoadBalanced Role = iota
	// RoleAddressed is a cmdbroker worker's shape: registration traffic
	// and the worker's ping and terminate responses travel bare
	// ([type_tag, body]); commands, and the broker's ping and terminate
	// requests, arrive as [client_addr, empty, type_tag, body], and a
	// command reply goes back in that same shape.
	RoleAddressed
)

// Handler decodes and answers one request. The returned tag/body pair is
// serialized with the engine's codec registry and sent back verbatim; a
// nil reply value means "send nothing" (the client times out).
type Handler func(tag string, body interface{}) (replyTag string, reply interface{})

// Config describes one worker connection.
type Config struct {
	BackendAddress string
	Role           Role
	Identity       cmdmsg.ModuleIdentity
	Registry       *wire.Registry
	Handler        Handler
	PollingTimeout time.Duration

	// RegistrationTimeout bounds how long Start waits for
	// RegistrationResponse(Success) for RoleAddressed workers.
	RegistrationTimeout time.Duration
}

// Engine runs a worker's poll loop in its own goroutine.
type Engine struct {
	cfg      Config
	sock     transport.Socket
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Start connects the backend socket, performs the RoleAddressed
// registration handshake, and launches the poll loop.
func Start(cfg Config) (*Engine, error) {
	pollingTimeout := cfg.PollingTimeout
	if pollingTimeout <= 0 {
		pollingTimeout = 100 * time.Millisecond
	}
	cfg.PollingTimeout = pollingTimeout
	if cfg.RegistrationTimeout <= 0 {
		cfg.RegistrationTimeout = 5 * time.Second
	}

	sock, err := transport.Connect(transport.KindDealer, transport.Options{
		Address:        cfg.BackendAddress,
		PollingTimeout: pollingTimeout,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, sock: sock, stop: make(chan struct{}), done: make(chan struct{})}

	if cfg.Role == RoleAddressed {
		if err := e.register(); err != nil {
			sock.Close()
			return nil, err
		}
	}

	go e.loop()
	return e, nil
}

// sendBare writes a tag/body pair with no addressing frames: the shape
// registration, deregistration, and heartbeat traffic use.
func (e *Engine) sendBare(msg wire.Message) error {
	return e.sock.Send([][]byte{[]byte(msg.Tag), msg.Body})
}

// sendAddressed writes the four-frame shape a command reply uses,
// echoing back the operator address the original dispatch carried.
func (e *Engine) sendAddressed(clientAddr []byte, msg wire.Message) error {
	return e.sock.Send([][]byte{clientAddr, nil, []byte(msg.Tag), msg.Body})
}

// closeStop ends the poll loop. It is called from both Stop (caller-
// initiated shutdown) and handleAddressed (self-initiated shutdown on a
// broker-issued TerminateRequest), so it is idempotent.
func (e *Engine) closeStop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) decodeBare(frames [][]byte) (interface{}, bool) {
	if len(frames) != 2 {
		return nil, false
	}
	decoded, err := e.cfg.Registry.Decode(wire.Message{Tag: string(frames[0]), Body: frames[1]})
	if err != nil {
		return nil, false
	}
	return decoded, true
}

func (e *Engine) register() error {
	req := cmdmsg.NewRegistrationRequest(e.cfg.Identity, cmdmsg.ActionRegister)
	msg, err := wire.Encode(cmdmsg.TagRegistrationRequest, req)
	if err != nil {
		return err
	}
	if err := e.sendBare(msg); err != nil {
		return err
	}

	deadline := time.Now().Add(e.cfg.RegistrationTimeout)
	for time.Now().Before(deadline) {
		// Receive has no deadline of its own, so the wait is bounded
		// here; on timeout Start closes the socket, ending the Receive.
		type received struct {
			frames [][]byte
			err    error
		}
		ch := make(chan received, 1)
		go func() { f, err := e.sock.Receive(); ch <- received{f, err} }()
		var r received
		select {
		case r = <-ch:
		case <-time.After(time.Until(deadline)):
			continue
		}
		if r.err != nil {
			continue
		}
		decoded, ok := e.decodeBare(r.frames)
		if !ok {
			continue
		}
		resp, ok := decoded.(*cmdmsg.RegistrationResponse)
		if !ok {
			continue
		}
		if resp.ReturnCode == cmdmsg.RegistrationSuccess {
			return nil
		}
		return fmt.Errorf("replyengine: registration rejected: code %v", resp.ReturnCode)
	}
	return fmt.Errorf("replyengine: registration timed out for %s", e.cfg.Identity.Name)
}

// Stop ends the poll loop. For RoleAddressed workers it first
// deregisters, on a best-effort basis.
func (e *Engine) Stop() {
	if e.cfg.Role == RoleAddressed {
		req := cmdmsg.NewRegistrationRequest(e.cfg.Identity, cmdmsg.ActionDeregister)
		if msg, err := wire.Encode(cmdmsg.TagRegistrationRequest, req); err == nil {
			_ = e.sendBare(msg)
		}
	}
	e.closeStop()
	// The loop blocks in a Receive with no deadline; closing the socket
	// wakes it so it observes the stop signal.
	e.sock.Close()
	<-e.done
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		frames, err := e.sock.Receive()
		if err != nil {
			select {
			case <-e.stop:
				return
			default:
			}
			log.Printf("replyengine: receive error: %v", err)
			continue
		}
		switch e.cfg.Role {
		case RoleLoadBalanced:
			e.handleLoadBalanced(frames)
		case RoleAddressed:
			e.handleAddressed(frames)
		}
	}
}

func (e *Engine) handleLoadBalanced(frames [][]byte) {
	if len(frames) != 3 {
		log.Printf("replyengine: expected [identity, tag, body], got %d frames", len(frames))
		return
	}
	identity := frames[0]
	msg := wire.Message{Tag: string(frames[1]), Body: frames[2]}
	decoded, err := e.cfg.Registry.Decode(msg)
	if err != nil {
		log.Printf("replyengine: decode %s: %v", msg.Tag, err)
		return
	}
	if pingReq, ok := decoded.(*cmdmsg.PingRequest); ok {
		out, err := wire.Encode(cmdmsg.TagPingResponse, cmdmsg.NewPingResponse(pingReq.TimeMs))
		if err == nil {
			_ = e.sock.Send([][]byte{identity, []byte(out.Tag), out.Body})
		}
		return
	}
	replyTag, reply := e.cfg.Handler(msg.Tag, decoded)
	if reply == nil {
		return
	}
	out, err := wire.Encode(replyTag, reply)
	if err != nil {
		log.Printf("replyengine: encode reply %s: %v", replyTag, err)
		return
	}
	if err := e.sock.Send([][]byte{identity, []byte(out.Tag), out.Body}); err != nil {
		log.Printf("replyengine: send reply: %v", err)
	}
}

func (e *Engine) handleAddressed(frames [][]byte) {
	switch len(frames) {
	case 2:
		// After the handshake the only bare message the broker sends is
		// the RegistrationResponse to Stop's deregistration, which needs
		// no handling; log and drop.
		log.Printf("replyengine: unexpected bare frame set post-registration")
	case 4:
		clientAddr, tag, body := frames[0], string(frames[2]), frames[3]
		decoded, err := e.cfg.Registry.Decode(wire.Message{Tag: tag, Body: body})
		if err != nil {
			log.Printf("replyengine: decode %s: %v", tag, err)
			return
		}
		if pingReq, ok := decoded.(*cmdmsg.PingRequest); ok {
			out, err := wire.Encode(cmdmsg.TagPingResponse, cmdmsg.NewPingResponse(pingReq.TimeMs))
			if err == nil {
				_ = e.sendBare(out)
			}
			return
		}
		if _, ok := decoded.(*cmdmsg.TerminateRequest); ok {
			out, err := wire.Encode(cmdmsg.TagTerminateResponse, cmdmsg.NewTerminateResponse(cmdmsg.RegistrationSuccess))
			if err == nil {
				_ = e.sendBare(out)
			}
			e.closeStop()
			return
		}

		replyTag, reply := e.cfg.Handler(tag, decoded)
		if reply == nil {
			return
		}
		out, err := wire.Encode(replyTag, reply)
		if err != nil {
			log.Printf("replyengine: encode reply %s: %v", replyTag, err)
			return
		}
		if err := e.sendAddressed(clientAddr, out); err != nil {
			log.Printf("replyengine: send reply: %v", err)
		}
	default:
		log.Printf("replyengine: unexpected frame count %d", len(frames))
	}
}
