package reqrep

import (
	"testing"
	"time"

	"github.com/uofuseismo/umps-go/internal/transport"
)

func TestBroker_LoadBalancesToSingleWorker(t *testing.T) {
	b, err := Open(Config{
		FrontendAddress: "inproc://reqrep-front-1",
		BackendAddress:  "inproc://reqrep-back-1",
		PollingTimeout:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	worker, err := transport.Connect(transport.KindDealer, transport.Options{
		Address:        "inproc://reqrep-back-1",
		PollingTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Connect worker: %v", err)
	}
	defer worker.Close()

	client, err := transport.Connect(transport.KindDealer, transport.Options{
		Address:        "inproc://reqrep-front-1",
		PollingTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Connect client: %v", err)
	}
	defer client.Close()

	time.Sleep(20 * time.Millisecond)

	if err := client.Send([][]byte{[]byte("UMPS.Test.Request"), []byte("payload")}); err != nil {
		t.Fatalf("client.Send: %v", err)
	}

	req, err := worker.Receive()
	if err != nil {
		t.Fatalf("worker.Receive: %v", err)
	}
	if len(req) != 3 {
		t.Fatalf("worker.Receive = %v, want [identity, tag, body]", req)
	}
	identity := req[0]
	if string(req[1]) != "UMPS.Test.Request" || string(req[2]) != "payload" {
		t.Fatalf("worker.Receive content = %v", req[1:])
	}

	if err := worker.Send([][]byte{identity, []byte("UMPS.Test.Response"), []byte("answer")}); err != nil {
		t.Fatalf("worker.Send: %v", err)
	}

	reply, err := client.Receive()
	if err != nil {
		t.Fatalf("client.Receive: %v", err)
	}
	if len(reply) != 2 || string(reply[0]) != "UMPS.Test.Response" || string(reply[1]) != "answer" {
		t.Fatalf("client.Receive = %v", reply)
	}
}
