// Package auth implements the authentication plane: the Authenticator
// plug-in contract (declared in internal/transport so sockets can
// reference it without importing this package), a CurveZMQ-style
// 32-byte curve25519 keypair I/O helper, and the "Grasslands"
// allow-everyone reference Authenticator.
//
// Keys are persisted as hex text rather than CurveZMQ's native Z85
// encoding, since no Z85 codec is in use elsewhere in this module (see
// DESIGN.md).
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the width of a curve25519 public or private key, matching
// keys.cpp's std::array<uint8_t, 32>.
const KeySize = 32

// KeyPair is a public/private key pair for the CurveZMQ-style handshake
// an Authenticator may require.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random keypair.
func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return KeyPair{}, fmt.Errorf("auth: generate private key: %w", err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("auth: derive public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// WritePublicKeyFile and WritePrivateKeyFile persist one half of a
// keypair as hex text, one key per file, matching keys.cpp's one-file-
// per-key layout (it writes separate public/private certificate files).
func WritePublicKeyFile(path string, kp KeyPair) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(kp.Public[:])+"\n"), 0o600)
}

func WritePrivateKeyFile(path string, kp KeyPair) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(kp.Private[:])+"\n"), 0o600)
}

// ReadPublicKeyFile and ReadPrivateKeyFile parse what the Write
// functions produced.
func ReadPublicKeyFile(path string) ([KeySize]byte, error) {
	return readKeyFile(path)
}

func ReadPrivateKeyFile(path string) ([KeySize]byte, error) {
	return readKeyFile(path)
}

func readKeyFile(path string) ([KeySize]byte, error) {
	var key [KeySize]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return key, err
	}
	decoded, err := hex.DecodeString(trimNewline(raw))
	if err != nil {
		return key, fmt.Errorf("auth: decode %s: %w", path, err)
	}
	if len(decoded) != KeySize {
		return key, fmt.Errorf("auth: %s holds %d bytes, want %d", path, len(decoded), KeySize)
	}
	copy(key[:], decoded)
	return key, nil
}

func trimNewline(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return string(b)
}
