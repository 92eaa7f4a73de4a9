package auth

import (
	"log"

	"github.com/uofuseismo/umps-go/internal/transport"
)

// Grasslands is the allow-everyone reference Authenticator: every
// address, username, and public key is accepted at the minimum
// privilege level. It exists so the broker components have a usable
// default when no deployment-specific policy is configured, not as a
// production policy.
type Grasslands struct {
	Logger *log.Logger
}

// NewGrasslands returns a Grasslands authenticator; a nil Logger logs
// nothing.
func NewGrasslands() *Grasslands { return &Grasslands{} }

func (g *Grasslands) logf(format string, args ...interface{}) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
	}
}

// Authenticate always allows, at read-only privilege.
func (g *Grasslands) Authenticate(peerAddress string, _ transport.Credential) (transport.Decision, error) {
	g.logf("auth: grasslands address %s is not blacklisted", peerAddress)
	return transport.Decision{Allowed: true, Privilege: transport.PrivilegeReadOnly, Reason: "grasslands"}, nil
}

var _ transport.Authenticator = (*Grasslands)(nil)
