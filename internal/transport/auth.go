package transport

// Privilege is the access level an Authenticator grants a peer.
type Privilege int

const (
	PrivilegeReadOnly Privilege = iota
	PrivilegeReadWrite
)

// Credential is the union of the two credential shapes this module
// supports: username/password or a public key. Exactly one of UserName
// or PublicKey should be set.
type Credential struct {
	UserName   string
	Password   string
	PublicKey  []byte
}

// Decision is an Authenticator's verdict for one peer/credential pair.
type Decision struct {
	Allowed   bool
	Privilege Privilege
	Reason    string
}

// Authenticator is the plug-in contract: for a given inbound peer
// address and credential, decide whether to admit it and at what
// privilege level. Concrete policy (allow-lists, CA-signed keys, LDAP
// lookups, ...) is outside this package's scope; it only specifies this
// interface. The allow-everyone "Grasslands" implementation lives in
// internal/auth.
type Authenticator interface {
	Authenticate(peerAddress string, credential Credential) (Decision, error)
}

// Authentication selects a socket's authentication mechanism and role.
// A nil Authenticator is valid. Bind and Connect carry this value in
// Options but perform no handshake and never call the Authenticator.
type Authentication struct {
	Mechanism     string
	Authenticator Authenticator
}
