// Package main runs the command proxy: the addressed ROUTER/ROUTER
// broker from component E, fronting the module registry (component I)
// and a pluggable peer authenticator (component J).
//
// Called by: operators, deployment scripts.
// Calls: internal/cmdbroker, internal/moduletable, internal/auth.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uofuseismo/umps-go/internal/auth"
	"github.com/uofuseismo/umps-go/internal/cmdbroker"
	"github.com/uofuseismo/umps-go/internal/config"
	"github.com/uofuseismo/umps-go/internal/moduletable"
	"github.com/uofuseismo/umps-go/internal/transport"
)

func main() {
	var cfg *config.Config
	if len(os.Args) >= 2 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to load config from %s: %v", os.Args[1], err)
		}
		cfg = loaded
		log.Printf("Starting command-proxy using config file: %s", os.Args[1])
	} else {
		cfg = defaultConfig()
		log.Printf("No config file specified, using defaults")
	}

	tablePath := cfg.CommandProxy.ModuleTablePath
	if tablePath == "" {
		tablePath = filepath.Join(cfg.IPCRoot, "module_table")
	}
	table, err := moduletable.Open(moduletable.Options{Path: tablePath, CreateAbsent: true})
	if err != nil {
		log.Fatalf("Failed to open module table at %s: %v", tablePath, err)
	}
	defer table.Close()
	log.Printf("Command-proxy module table opened: %s", tablePath)

	authenticator := auth.NewGrasslands()

	var broker *cmdbroker.Broker
	err = auth.StartSequence(
		func() error {
			log.Printf("Command-proxy authenticator ready: grasslands")
			return nil
		},
		func() error {
			broker, err = cmdbroker.Open(cmdbroker.Config{
				FrontendAddress: cfg.CommandProxy.FrontendAddress,
				BackendAddress:  cfg.CommandProxy.BackendAddress,
				FrontendAuth:    transport.Authentication{Mechanism: "grasslands", Authenticator: authenticator},
				BackendAuth:     transport.Authentication{Mechanism: "grasslands", Authenticator: authenticator},
				PollingTimeout:  cfg.PollingTimeout(),
				PingIntervals:   cfg.CommandProxy.PingIntervals(),
				Grace:           time.Duration(cfg.CommandProxy.GraceMillis) * time.Millisecond,
				SweepInterval:   time.Duration(cfg.CommandProxy.SweepIntervalMs) * time.Millisecond,
			})
			return err
		},
	)
	if err != nil {
		log.Fatalf("Failed to start command-proxy: %v", err)
	}
	log.Printf("Command-proxy broker listening: frontend=%s backend=%s",
		cfg.CommandProxy.FrontendAddress, cfg.CommandProxy.BackendAddress)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case <-ctx.Done():
	}

	broker.Close()
	log.Printf("Command-proxy service stopped")
}

func defaultConfig() *config.Config {
	return &config.Config{
		IPCRoot:              "/tmp/umps",
		PollingTimeoutMillis: 100,
		CommandProxy: config.CommandConfig{
			FrontendAddress:  "tcp://127.0.0.1:6000",
			BackendAddress:   "tcp://127.0.0.1:6001",
			PingIntervalsSec: []int{5, 15, 30},
			GraceMillis:      100,
			SweepIntervalMs:  100,
			ModuleTablePath:  "/tmp/umps/module_table",
		},
	}
}
