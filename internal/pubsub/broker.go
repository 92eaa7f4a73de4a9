// Package pubsub implements a fan-out broker: an XSUB frontend that
// producers publish into and an XPUB backend that consumers subscribe
// from, joined by a dumb bidirectional proxy loop.
package pubsub

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/uofuseismo/umps-go/internal/transport"
)

// control values for the internal steerable channel.
type control int32

const (
	controlRun control = iota
	controlPause
	controlTerminate
)

// Broker forwards every message from its frontend to its backend and
// every subscription frame from its backend to its frontend, unmodified,
// until told to stop.
type Broker struct {
	frontend transport.Socket // XSUB, bound
	backend  transport.Socket // XPUB, bound

	state          atomic.Int32
	pollingTimeout time.Duration

	stopped chan struct{}
}

// Config names the two bind addresses and independent authentication for
// each side, allowing producers and consumers to sit behind different
// policies.
type Config struct {
	FrontendAddress string
	BackendAddress  string

	FrontendAuth transport.Authentication
	BackendAuth  transport.Authentication

	PollingTimeout time.Duration
}

// Open binds both sockets and starts the forwarding goroutine.
func Open(cfg Config) (*Broker, error) {
	pollingTimeout := cfg.PollingTimeout
	if pollingTimeout <= 0 {
		pollingTimeout = 100 * time.Millisecond
	}

	frontend, err := transport.Bind(transport.KindXSub, transport.Options{
		Address:        cfg.FrontendAddress,
		Auth:           cfg.FrontendAuth,
		PollingTimeout: pollingTimeout,
	})
	if err != nil {
		return nil, err
	}
	backend, err := transport.Bind(transport.KindXPub, transport.Options{
		Address:        cfg.BackendAddress,
		Auth:           cfg.BackendAuth,
		PollingTimeout: pollingTimeout,
	})
	if err != nil {
		frontend.Close()
		return nil, err
	}

	b := &Broker{
		frontend:       frontend,
		backend:        backend,
		pollingTimeout: pollingTimeout,
		stopped:        make(chan struct{}),
	}
	go b.forwardLoop(frontend, backend, "frontend->backend")
	go b.forwardLoop(backend, frontend, "backend->frontend")
	return b, nil
}

// forwardLoop pumps multipart frames unmodified from src to dst. It is
// started once per direction: frontend->backend carries publications,
// backend->frontend carries subscription frames.
func (b *Broker) forwardLoop(src, dst transport.Socket, label string) {
	for {
		if control(b.state.Load()) == controlTerminate {
			return
		}
		frames, err := src.Receive()
		if err != nil {
			select {
			case <-b.stopped:
				return
			default:
			}
			log.Printf("pubsub: %s receive error: %v", label, err)
			continue
		}
		if control(b.state.Load()) == controlPause {
			continue
		}
		if err := dst.Send(frames); err != nil {
			log.Printf("pubsub: %s send error: %v", label, err)
		}
	}
}

// Pause stops forwarding without closing either socket.
func (b *Broker) Pause() { b.state.Store(int32(controlPause)) }

// Resume reverses Pause.
func (b *Broker) Resume() { b.state.Store(int32(controlRun)) }

// Terminate stops the broker and closes both sockets. Only Terminate
// ends the broker; per-side transport errors are logged and otherwise
// ignored.
func (b *Broker) Terminate() {
	b.state.Store(int32(controlTerminate))
	close(b.stopped)
	b.frontend.Close()
	b.backend.Close()
}
