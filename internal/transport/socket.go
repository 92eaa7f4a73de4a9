package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uofuseismo/umps-go/internal/errs"
)

// Kind is one of the socket types a broker component opens. Each
// component opens a fixed pair of kinds (pubsub opens XSUB/XPUB, reqrep
// opens ROUTER/DEALER, cmdbroker opens ROUTER/ROUTER).
type Kind int

const (
	KindPub Kind = iota
	KindSub
	KindXPub
	KindXSub
	KindRouter
	KindDealer
)

// broadcast reports whether a listener-backed socket of this kind fans
// a Send out to every connected peer (PUB/XPUB/XSUB) rather than routing
// it to one peer by identity (ROUTER is the only routed kind in this
// module).
func (k Kind) broadcast() bool {
	switch k {
	case KindPub, KindXPub, KindXSub:
		return true
	default:
		return false
	}
}

// Socket is the common surface every opened socket exposes. Receive's
// first returned frame is the sending peer's routing identity only for
// a bound ROUTER; every other socket, bound or connected, returns the
// frames as the peer sent them.
//
// Send on a ROUTER socket must pass the destination identity as
// frames[0]; Send on a broadcast socket (PUB/XPUB bind side) writes
// frames to every connected peer unchanged.
type Socket interface {
	Send(frames [][]byte) error
	Receive() ([][]byte, error)
	Close() error
}

// Bind opens a listener-backed socket: the broker side of every pair
// in this module binds.
func Bind(kind Kind, opts Options) (Socket, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	ep, _ := ParseEndpoint(opts.Address)

	var ln net.Listener
	var err error
	switch ep.Scheme {
	case SchemeTCP:
		ln, err = listenTCP(ep.Target)
	case SchemeIPC:
		ln, err = listenIPC(ep.Target)
	case SchemeInproc:
		ln, err = listenInproc(ep.Target)
	default:
		err = fmt.Errorf("unsupported scheme")
	}
	if err != nil {
		return nil, &errs.TransportError{Address: opts.Address, Op: "bind", Err: err}
	}

	s := newListenerSocket(ln, kind, opts)
	go s.acceptLoop()
	return s, nil
}

// Connect opens a dial-backed socket: workers, clients, and operator
// tools connect.
func Connect(kind Kind, opts Options) (Socket, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	ep, _ := ParseEndpoint(opts.Address)

	dial := func() (net.Conn, error) {
		switch ep.Scheme {
		case SchemeTCP:
			return dialTCP(ep.Target, opts.SendTimeout)
		case SchemeIPC:
			return dialIPC(ep.Target, opts.SendTimeout)
		case SchemeInproc:
			return dialInproc(ep.Target)
		default:
			return nil, fmt.Errorf("unsupported scheme")
		}
	}

	conn, err := dial()
	if err != nil {
		return nil, &errs.TransportError{Address: opts.Address, Op: "connect", Err: err}
	}
	return newSingleConnSocket(conn, opts), nil
}

// singleConnSocket backs every connect-side socket (SUB, XSUB, DEALER):
// exactly one underlying connection, owned by the caller's goroutine.
type singleConnSocket struct {
	conn net.Conn
	opts Options
	mu   sync.Mutex
}

func newSingleConnSocket(conn net.Conn, opts Options) *singleConnSocket {
	return &singleConnSocket{conn: conn, opts: opts}
}

func (s *singleConnSocket) Send(frames [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.SendTimeout != 0 {
		deadline := deadlineFor(s.opts.SendTimeout)
		_ = s.conn.SetWriteDeadline(deadline)
	}
	return writeFrames(s.conn, frames)
}

func (s *singleConnSocket) Receive() ([][]byte, error) {
	if s.opts.ReceiveTimeout != 0 {
		deadline := deadlineFor(s.opts.ReceiveTimeout)
		_ = s.conn.SetReadDeadline(deadline)
	}
	return readFrames(s.conn)
}

func (s *singleConnSocket) Close() error {
	if s.opts.Linger > 0 {
		time.Sleep(s.opts.Linger)
	}
	return s.conn.Close()
}

// deadlineFor converts a timeout value (negative = forever, zero = fail
// immediately, positive = wait that long) into a net.Conn deadline. A
// negative duration clears any deadline.
func deadlineFor(d time.Duration) time.Time {
	if d < 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// peerConn is one accepted connection on a listener-backed socket,
// identified by a fresh routing identity assigned at accept time; the
// peer's own RoutingIdentity option is not used.
type peerConn struct {
	identity string
	conn     net.Conn
}

// listenerSocket backs every bind-side socket (PUB, XPUB, ROUTER): it
// accepts any number of peer connections and either broadcasts to all of
// them (PUB/XPUB) or routes to one by identity (ROUTER).
type listenerSocket struct {
	ln   net.Listener
	kind Kind
	opts Options

	mu    sync.RWMutex
	peers map[string]*peerConn

	rrOrder []string
	rrIndex int

	inbox  chan inboundFrame
	closed chan struct{}
}

type inboundFrame struct {
	identity string
	frames   [][]byte
	err      error
}

func newListenerSocket(ln net.Listener, kind Kind, opts Options) *listenerSocket {
	return &listenerSocket{
		ln:     ln,
		kind:   kind,
		opts:   opts,
		peers:  make(map[string]*peerConn),
		inbox:  make(chan inboundFrame, hwmOrDefault(opts.ReceiveHWM)),
		closed: make(chan struct{}),
	}
}

func hwmOrDefault(hwm int) int {
	if hwm > 0 {
		return hwm
	}
	return 4096
}

func (s *listenerSocket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			return
		}
		identity := uuid.NewString()
		p := &peerConn{identity: identity, conn: conn}
		s.mu.Lock()
		s.peers[identity] = p
		s.mu.Unlock()
		go s.readLoop(p)
	}
}

func (s *listenerSocket) readLoop(p *peerConn) {
	for {
		frames, err := readFrames(p.conn)
		if err != nil {
			s.mu.Lock()
			delete(s.peers, p.identity)
			s.mu.Unlock()
			select {
			case s.inbox <- inboundFrame{identity: p.identity, err: err}:
			case <-s.closed:
			}
			return
		}
		select {
		case s.inbox <- inboundFrame{identity: p.identity, frames: frames}:
		case <-s.closed:
			return
		}
	}
}

// Send dispatches according to kind: ROUTER routes to the single peer
// named by frames[0] (stripping that identity frame before writing);
// PUB/XPUB/XSUB broadcast frames unmodified to every connected peer; a
// bound DEALER round-robins the unmodified frame list across connected
// workers, which is how DEALER load-balances without any
// application-visible addressing.
func (s *listenerSocket) Send(frames [][]byte) error {
	switch {
	case s.kind.broadcast():
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, p := range s.peers {
			if err := writeFrames(p.conn, frames); err != nil {
				return err
			}
		}
		return nil
	case s.kind == KindDealer:
		p, err := s.nextRoundRobin()
		if err != nil {
			return err
		}
		return writeFrames(p.conn, frames)
	default: // KindRouter
		if len(frames) == 0 {
			return fmt.Errorf("transport: ROUTER send requires a destination identity frame")
		}
		identity := string(frames[0])
		s.mu.RLock()
		p, ok := s.peers[identity]
		s.mu.RUnlock()
		if !ok {
			return &errs.TransportError{Address: identity, Op: "send", Err: fmt.Errorf("no such peer")}
		}
		return writeFrames(p.conn, frames[1:])
	}
}

// nextRoundRobin returns the next connected peer in rotation for a
// bound DEALER socket's load-balancing Send.
func (s *listenerSocket) nextRoundRobin() (*peerConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) == 0 {
		return nil, fmt.Errorf("transport: no workers connected")
	}
	if s.rrOrder == nil || len(s.rrOrder) != len(s.peers) {
		s.rrOrder = s.rrOrder[:0]
		for id := range s.peers {
			s.rrOrder = append(s.rrOrder, id)
		}
	}
	id := s.rrOrder[s.rrIndex%len(s.rrOrder)]
	s.rrIndex++
	p, ok := s.peers[id]
	if !ok {
		// peer vanished between snapshots; rebuild next time.
		s.rrOrder = nil
		return s.nextRoundRobinLocked()
	}
	return p, nil
}

// nextRoundRobinLocked retries once after a stale rotation snapshot,
// called with s.mu already held.
func (s *listenerSocket) nextRoundRobinLocked() (*peerConn, error) {
	if len(s.peers) == 0 {
		return nil, fmt.Errorf("transport: no workers connected")
	}
	for _, p := range s.peers {
		return p, nil
	}
	return nil, fmt.Errorf("transport: no workers connected")
}

// Receive returns the next inbound frame set. ROUTER prefixes the
// sending peer's connection identity (frames[0]) so the caller can
// address a reply; broadcast and bound-DEALER sockets pass frames
// through unmodified, since their application layer carries any
// addressing it needs as ordinary content frames.
func (s *listenerSocket) Receive() ([][]byte, error) {
	select {
	case f := <-s.inbox:
		if f.err != nil {
			return nil, f.err
		}
		if s.kind != KindRouter {
			return f.frames, nil
		}
		out := make([][]byte, 0, len(f.frames)+1)
		out = append(out, []byte(f.identity))
		out = append(out, f.frames...)
		return out, nil
	case <-s.closed:
		return nil, fmt.Errorf("transport: socket closed")
	}
}

func (s *listenerSocket) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
	}
	s.mu.Lock()
	for _, p := range s.peers {
		p.conn.Close()
	}
	s.mu.Unlock()
	return s.ln.Close()
}
