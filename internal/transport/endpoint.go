// Package transport wraps socket creation with three endpoint schemes
// and a common set of socket options: it opens typed sockets (PUB, SUB,
// XPUB, XSUB, ROUTER, DEALER) over TCP, IPC, or in-process transports,
// applies high-water marks, linger, and timeouts, creates IPC
// directories on bind, and removes IPC socket files on teardown.
package transport

import (
	"fmt"
	"strings"
)

// Scheme identifies one of the three endpoint schemes this package
// accepts.
type Scheme int

const (
	SchemeTCP Scheme = iota
	SchemeIPC
	SchemeInproc
)

// Endpoint is a parsed address string (tcp://host:port, ipc://path, or
// inproc://name). Any other scheme is rejected at parse time.
type Endpoint struct {
	Scheme Scheme
	Raw    string // the address as given, e.g. "tcp://127.0.0.1:5555"
	Target string // the part after "scheme://"
}

// ParseEndpoint parses and validates an address string.
func ParseEndpoint(address string) (Endpoint, error) {
	switch {
	case strings.HasPrefix(address, "tcp://"):
		return Endpoint{Scheme: SchemeTCP, Raw: address, Target: strings.TrimPrefix(address, "tcp://")}, nil
	case strings.HasPrefix(address, "ipc://"):
		return Endpoint{Scheme: SchemeIPC, Raw: address, Target: strings.TrimPrefix(address, "ipc://")}, nil
	case strings.HasPrefix(address, "inproc://"):
		return Endpoint{Scheme: SchemeInproc, Raw: address, Target: strings.TrimPrefix(address, "inproc://")}, nil
	default:
		return Endpoint{}, fmt.Errorf("transport: unrecognized endpoint scheme in %q", address)
	}
}

func (e Endpoint) String() string { return e.Raw }
