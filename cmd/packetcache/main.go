// Package main runs the packet-cache service: a request/reply RPC
// broker (component D) fronting a single worker process that answers
// DataRequest/BulkDataRequest/SensorRequest against an in-memory capped
// packet collection (component G).
//
// Called by: operators, deployment scripts.
// Calls: internal/reqrep, internal/replyengine, internal/packetcache.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uofuseismo/umps-go/internal/config"
	"github.com/uofuseismo/umps-go/internal/packetcache"
	"github.com/uofuseismo/umps-go/internal/replyengine"
	"github.com/uofuseismo/umps-go/internal/reqrep"
	"github.com/uofuseismo/umps-go/internal/wire"
)

func main() {
	var cfg *config.Config
	if len(os.Args) >= 2 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to load config from %s: %v", os.Args[1], err)
		}
		cfg = loaded
		log.Printf("Starting packet-cache using config file: %s", os.Args[1])
	} else {
		cfg = defaultConfig()
		log.Printf("No config file specified, using defaults")
	}

	reg := wire.NewRegistry()
	if err := packetcache.RegisterAll(reg); err != nil {
		log.Fatalf("Failed to register packet-cache codecs: %v", err)
	}

	broker, err := reqrep.Open(reqrep.Config{
		FrontendAddress: cfg.PacketCache.FrontendAddress,
		BackendAddress:  cfg.PacketCache.BackendAddress,
		PollingTimeout:  cfg.PollingTimeout(),
	})
	if err != nil {
		log.Fatalf("Failed to open packet-cache broker: %v", err)
	}
	log.Printf("Packet-cache broker listening: frontend=%s backend=%s",
		cfg.PacketCache.FrontendAddress, cfg.PacketCache.BackendAddress)

	cache := packetcache.NewCappedCollection(cfg.PacketCache.RingCapacity)
	svc := packetcache.NewService(cache)

	engine, err := replyengine.Start(replyengine.Config{
		BackendAddress: cfg.PacketCache.BackendAddress,
		Role:           replyengine.RoleLoadBalanced,
		Registry:       reg,
		PollingTimeout: cfg.PollingTimeout(),
		Handler: func(tag string, body interface{}) (string, interface{}) {
			reply := svc.Handle(tag, body)
			return reply.(wire.Tagged).Tag(), reply
		},
	})
	if err != nil {
		log.Fatalf("Failed to start packet-cache worker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case <-ctx.Done():
	}

	engine.Stop()
	broker.Close()
	log.Printf("Packet-cache service stopped")
}

func defaultConfig() *config.Config {
	return &config.Config{
		IPCRoot:              "/tmp/umps",
		PollingTimeoutMillis: 100,
		PacketCache: config.ReqRepConfig{
			FrontendAddress: "tcp://127.0.0.1:5555",
			BackendAddress:  "tcp://127.0.0.1:5556",
			RingCapacity:    4096,
		},
	}
}
