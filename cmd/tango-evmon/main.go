// Command tango-evmon is an interactive client for Tango device servers.
//
// It connects a client session over ZeroMQ and offers synchronous,
// asynchronous and callback calls, event subscriptions and the polling
// administration of the devices it talks to.
//
// Usage:
//
//	tango-evmon [flags]
//
// Flags:
//
//	-config string          Configuration file path (YAML)
//	-endpoint string        Server request endpoint (default "tcp://localhost:10000")
//	-event-endpoint string  Server event endpoint (default "tcp://localhost:10001")
//	-timeout duration       Synchronous call timeout
//	-log-level string       Log level: debug, info, warn, error
//	-protocol-log string    Write a protocol log to this file
//
// Examples:
//
//	# Connect to a local tango-devsim
//	tango-evmon
//
//	# Record everything for tango-log
//	tango-evmon -protocol-log evmon.tlog
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tango-controls/tango-go/internal/config"
	"github.com/tango-controls/tango-go/pkg/client"
	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/transport/zmq"
)

var (
	configFile    = flag.String("config", "", "Configuration file path (YAML)")
	endpoint      = flag.String("endpoint", "", "Server request endpoint (default tcp://localhost:10000)")
	eventEndpoint = flag.String("event-endpoint", "", "Server event endpoint (default tcp://localhost:10001)")
	timeout       = flag.Duration("timeout", 0, "Synchronous call timeout")
	logLevel      = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog   = flag.String("protocol-log", "", "Write a protocol log to this file")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	cfg.LogLevel = "warn"
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
	}
	if *endpoint != "" {
		cfg.Client.Endpoint = *endpoint
	}
	if *eventEndpoint != "" {
		cfg.Client.EventEndpoint = *eventEndpoint
	}
	if *timeout > 0 {
		cfg.Client.Timeout = *timeout
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *protocolLog != "" {
		cfg.ProtocolLog = *protocolLog
	}
	if _, err := config.ParseLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.File) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rl, err := newReadline()
	if err != nil {
		return err
	}
	logger := cfg.Logger(rl.Stderr())

	zcfg := cfg.Client.ZMQ()
	zcfg.Logger = logger
	tr, err := zmq.Dial(zcfg)
	if err != nil {
		rl.Close()
		return err
	}

	sessCfg := cfg.Client.Session()
	sessCfg.Logger = logger
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			rl.Close()
			_ = tr.Close()
			return fmt.Errorf("opening protocol log: %w", err)
		}
		defer fl.Close()
		sessCfg.ProtocolLogger = fl
	}

	s := client.NewSession(tr, sessCfg)
	defer s.Close()

	console := NewConsole(s, rl)
	fmt.Fprintf(console.Stdout(), "Connected to %s (events %s), session %s\n", zcfg.Endpoint, zcfg.EventEndpoint, s.ID())
	console.Run(ctx, cancel)
	return nil
}
