package transport

import (
	"bytes"
	"testing"
	"time"
)

func testOptions(addr string) Options {
	return Options{Address: addr, PollingTimeout: 50 * time.Millisecond}
}

func TestParseEndpoint_Schemes(t *testing.T) {
	cases := map[string]Scheme{
		"tcp://127.0.0.1:5555": SchemeTCP,
		"ipc:///tmp/umps.sock": SchemeIPC,
		"inproc://widgets":     SchemeInproc,
	}
	for addr, want := range cases {
		ep, err := ParseEndpoint(addr)
		if err != nil {
			t.Fatalf("ParseEndpoint(%q): %v", addr, err)
		}
		if ep.Scheme != want {
			t.Errorf("ParseEndpoint(%q).Scheme = %v, want %v", addr, ep.Scheme, want)
		}
	}
}

func TestParseEndpoint_UnknownScheme(t *testing.T) {
	if _, err := ParseEndpoint("udp://127.0.0.1:5555"); err == nil {
		t.Fatal("expected error for unrecognized scheme")
	}
}

func TestOptions_ValidateRequiresAddress(t *testing.T) {
	opts := Options{PollingTimeout: time.Second}
	if err := opts.Validate(); err == nil {
		t.Fatal("expected error for missing address")
	}
}

func TestOptions_ValidateTruncatesRoutingIdentity(t *testing.T) {
	opts := Options{Address: "inproc://x", PollingTimeout: time.Second, RoutingIdentity: bytes.Repeat([]byte{'a'}, 300)}
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(opts.RoutingIdentity) != maxRoutingIdentity {
		t.Errorf("RoutingIdentity len = %d, want %d", len(opts.RoutingIdentity), maxRoutingIdentity)
	}
}

func TestRouterDealer_Inproc_RoundTrip(t *testing.T) {
	addr := "inproc://router-dealer-test"

	router, err := Bind(KindRouter, testOptions(addr))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer router.Close()

	dealer, err := Connect(KindDealer, testOptions(addr))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer dealer.Close()

	if err := dealer.Send([][]byte{[]byte("hello")}); err != nil {
		t.Fatalf("dealer.Send: %v", err)
	}

	got, err := router.Receive()
	if err != nil {
		t.Fatalf("router.Receive: %v", err)
	}
	if len(got) != 2 || string(got[1]) != "hello" {
		t.Fatalf("router.Receive = %v, want [identity, hello]", got)
	}
	identity := got[0]

	if err := router.Send([][]byte{identity, []byte("world")}); err != nil {
		t.Fatalf("router.Send: %v", err)
	}
	reply, err := dealer.Receive()
	if err != nil {
		t.Fatalf("dealer.Receive: %v", err)
	}
	if len(reply) != 1 || string(reply[0]) != "world" {
		t.Fatalf("dealer.Receive = %v, want [world]", reply)
	}
}

func TestPub_Inproc_BroadcastsToAllSubscribers(t *testing.T) {
	addr := "inproc://pub-sub-test"

	pub, err := Bind(KindPub, testOptions(addr))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer pub.Close()

	sub1, err := Connect(KindSub, testOptions(addr))
	if err != nil {
		t.Fatalf("Connect sub1: %v", err)
	}
	defer sub1.Close()
	sub2, err := Connect(KindSub, testOptions(addr))
	if err != nil {
		t.Fatalf("Connect sub2: %v", err)
	}
	defer sub2.Close()

	// Give the accept loop a moment to register both connections before
	// the broadcast send, since acceptLoop runs asynchronously.
	time.Sleep(20 * time.Millisecond)

	if err := pub.Send([][]byte{[]byte("topic"), []byte("payload")}); err != nil {
		t.Fatalf("pub.Send: %v", err)
	}

	for _, sub := range []Socket{sub1, sub2} {
		got, err := sub.Receive()
		if err != nil {
			t.Fatalf("sub.Receive: %v", err)
		}
		if len(got) != 2 || string(got[0]) != "topic" || string(got[1]) != "payload" {
			t.Fatalf("sub.Receive = %v", got)
		}
	}
}

func TestBind_DuplicateInprocAddressFails(t *testing.T) {
	addr := "inproc://dup-test"
	first, err := Bind(KindRouter, testOptions(addr))
	if err != nil {
		t.Fatalf("first Bind: %v", err)
	}
	defer first.Close()

	if _, err := Bind(KindRouter, testOptions(addr)); err == nil {
		t.Fatal("expected second Bind to the same inproc address to fail")
	}
}
