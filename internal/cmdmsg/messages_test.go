package cmdmsg

import (
	"testing"

	"github.com/uofuseismo/umps-go/internal/wire"
)

func TestRegisterAll_RoundTrip(t *testing.T) {
	reg := wire.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	identity := ModuleIdentity{Name: "TestModule", Instance: 1, Pid: 100}
	want := NewRegistrationRequest(identity, ActionRegister)

	msg, err := wire.Encode(TagRegistrationRequest, want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := reg.Decode(msg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(*RegistrationRequest)
	if !ok {
		t.Fatalf("decoded type %T", decoded)
	}
	if got.Identity != want.Identity || got.Action != want.Action {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestRegisterAll_NoDuplicates(t *testing.T) {
	reg := wire.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("first RegisterAll: %v", err)
	}
	if err := RegisterAll(reg); err == nil {
		t.Fatal("second RegisterAll into the same registry should reject the duplicate tags")
	}
}
