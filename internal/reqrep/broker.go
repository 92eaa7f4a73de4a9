// Package reqrep implements a load-balanced RPC broker: a ROUTER
// frontend clients connect to and a DEALER backend workers connect to,
// joined by a poll loop that forwards each side's traffic to the other.
// The DEALER backend performs the actual load-balancing across
// connected workers; the broker itself holds no per-client state.
package reqrep

import (
	"log"
	"time"

	"github.com/uofuseismo/umps-go/internal/transport"
)

// Config names the two bind addresses.
type Config struct {
	FrontendAddress string
	BackendAddress  string

	FrontendAuth transport.Authentication
	BackendAuth  transport.Authentication

	PollingTimeout time.Duration
}

// Broker is a running request/reply proxy. It holds no routing table of
// its own: a ROUTER/DEALER pair against a listener-backed DEALER means
// an incoming worker message already has the identity prefix needed to
// route the reply back through the frontend.
type Broker struct {
	frontend transport.Socket
	backend  transport.Socket
	done     chan struct{}
}

// Open binds both sockets and starts the forwarding goroutines.
func Open(cfg Config) (*Broker, error) {
	pollingTimeout := cfg.PollingTimeout
	if pollingTimeout <= 0 {
		pollingTimeout = 100 * time.Millisecond
	}

	frontend, err := transport.Bind(transport.KindRouter, transport.Options{
		Address:        cfg.FrontendAddress,
		Auth:           cfg.FrontendAuth,
		PollingTimeout: pollingTimeout,
	})
	if err != nil {
		return nil, err
	}
	backend, err := transport.Bind(transport.KindDealer, transport.Options{
		Address:        cfg.BackendAddress,
		Auth:           cfg.BackendAuth,
		PollingTimeout: pollingTimeout,
	})
	if err != nil {
		frontend.Close()
		return nil, err
	}

	b := &Broker{frontend: frontend, backend: backend, done: make(chan struct{})}
	go b.pump(frontend, backend, "frontend->backend")
	go b.pump(backend, frontend, "backend->frontend")
	return b, nil
}

// pump moves a client's request (or a worker's reply) from src to dst
// with the frame list untouched. The frontend ROUTER prefixes the
// client's connection identity onto every inbound request; forwarding
// that frame set unmodified to the backend DEALER carries the identity
// along as an ordinary content frame, and a worker's reply echoes it
// back the same way, so the frontend ROUTER's Send (which reads frames[0]
// as the destination identity) finds exactly the frame it needs without
// the broker ever inspecting message content.
func (b *Broker) pump(src, dst transport.Socket, label string) {
	for {
		frames, err := src.Receive()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			log.Printf("reqrep: %s receive error: %v", label, err)
			continue
		}
		if err := dst.Send(frames); err != nil {
			log.Printf("reqrep: %s send error: %v", label, err)
		}
	}
}

// Close stops the proxy and unbinds both sockets.
func (b *Broker) Close() {
	close(b.done)
	b.frontend.Close()
	b.backend.Close()
}
