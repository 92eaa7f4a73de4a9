package transport

import (
	"fmt"
	"time"

	"github.com/uofuseismo/umps-go/internal/errs"
	"github.com/uofuseismo/umps-go/internal/wire"
)

// Handler is invoked by a reply-style socket for each decoded request;
// it returns an optional reply value (nil means "no reply"). Handlers
// are registered once at startup, must be safe to invoke from the poll
// goroutine, and must not retain references to the socket's internals.
type Handler func(tag string, body []byte) (reply interface{}, err error)

// Options configures a socket. Address is required and set once per
// socket life; everything else has a documented zero value.
type Options struct {
	Address string

	ReceiveHWM int // 0 = unbounded
	SendHWM    int // 0 = unbounded

	ReceiveTimeout time.Duration // connect-side sockets only: positive = wait that long, zero or negative = no deadline; there is no fail-immediately setting
	SendTimeout    time.Duration
	Linger         time.Duration

	PollingTimeout time.Duration // must be positive

	RoutingIdentity []byte // truncated to 255 bytes

	Auth Authentication

	Handler       Handler
	CodecRegistry *wire.Registry
}

// maxRoutingIdentity is the truncation limit for a routing identity.
const maxRoutingIdentity = 255

// Validate checks options eagerly at Bind/Connect time rather than
// deferring to first send.
func (o *Options) Validate() error {
	if o.Address == "" {
		return &errs.ConfigError{Field: "address", Err: errAddressRequired}
	}
	if _, err := ParseEndpoint(o.Address); err != nil {
		return &errs.ConfigError{Field: "address", Err: err}
	}
	if o.PollingTimeout <= 0 {
		return &errs.ConfigError{Field: "polling_timeout", Err: errPollingTimeoutPositive}
	}
	if len(o.RoutingIdentity) > maxRoutingIdentity {
		o.RoutingIdentity = o.RoutingIdentity[:maxRoutingIdentity]
	}
	return nil
}

var (
	errAddressRequired        = fmt.Errorf("address is required")
	errPollingTimeoutPositive = fmt.Errorf("polling_timeout must be positive")
)
