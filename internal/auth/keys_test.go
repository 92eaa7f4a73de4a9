package auth

import (
	"path/filepath"
	"testing"

	"github.com/uofuseismo/umps-go/internal/transport"
)

func TestGenerateKeyPair_DistinctKeys(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if a.Public == b.Public {
		t.Error("two generated keypairs produced the same public key")
	}
}

func TestKeyFiles_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	dir := t.TempDir()
	pubPath := filepath.Join(dir, "module.pub")
	privPath := filepath.Join(dir, "module.priv")

	if err := WritePublicKeyFile(pubPath, kp); err != nil {
		t.Fatalf("WritePublicKeyFile: %v", err)
	}
	if err := WritePrivateKeyFile(privPath, kp); err != nil {
		t.Fatalf("WritePrivateKeyFile: %v", err)
	}

	gotPub, err := ReadPublicKeyFile(pubPath)
	if err != nil {
		t.Fatalf("ReadPublicKeyFile: %v", err)
	}
	if gotPub != kp.Public {
		t.Error("round-tripped public key mismatch")
	}

	gotPriv, err := ReadPrivateKeyFile(privPath)
	if err != nil {
		t.Fatalf("ReadPrivateKeyFile: %v", err)
	}
	if gotPriv != kp.Private {
		t.Error("round-tripped private key mismatch")
	}
}

func TestGrasslands_AlwaysAllowsReadOnly(t *testing.T) {
	g := NewGrasslands()
	decision, err := g.Authenticate("127.0.0.1:5555", transport.Credential{UserName: "anyone"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !decision.Allowed {
		t.Error("Grasslands should always allow")
	}
	if decision.Privilege != transport.PrivilegeReadOnly {
		t.Errorf("Privilege = %v, want ReadOnly", decision.Privilege)
	}
}
