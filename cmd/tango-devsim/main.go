// Command tango-devsim runs a simulated Tango device server over ZeroMQ.
//
// The server hosts TangoTest devices and its admin device
// "dserver/<instance>". Polling periods set through the admin device are
// kept in a property database so they survive restarts.
//
// Usage:
//
//	tango-devsim [flags]
//
// Flags:
//
//	-config string          Configuration file path (YAML)
//	-instance string        Server instance name
//	-endpoint string        Request endpoint (default "tcp://*:10000")
//	-event-endpoint string  Event endpoint (default "tcp://*:10001")
//	-store string           Property database path (default: in memory)
//	-device string          Comma separated device names to host
//	-log-level string       Log level: debug, info, warn, error
//	-protocol-log string    Write a protocol log to this file
//	-simulate               Change event_change_tst periodically
//
// Examples:
//
//	# Serve sys/tg_test/1 on the default ports
//	tango-devsim
//
//	# Two devices, persistent polling configuration
//	tango-devsim -device sys/tg_test/1,sys/tg_test/2 -store /tmp/devsim.db
//
//	# Everything from a file
//	tango-devsim -config devsim.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tango-controls/tango-go/internal/config"
	"github.com/tango-controls/tango-go/pkg/devserver"
	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/property"
	"github.com/tango-controls/tango-go/pkg/transport/zmq"
)

// Flags holds the command line. Set values override the config file.
type Flags struct {
	ConfigFile    string
	Instance      string
	Endpoint      string
	EventEndpoint string
	Store         string
	Devices       string
	LogLevel      string
	ProtocolLog   string
	Simulate      bool
	SimInterval   time.Duration
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Instance, "instance", "", "Server instance name")
	flag.StringVar(&flags.Endpoint, "endpoint", "", "Request endpoint (default tcp://*:10000)")
	flag.StringVar(&flags.EventEndpoint, "event-endpoint", "", "Event endpoint (default tcp://*:10001)")
	flag.StringVar(&flags.Store, "store", "", "Property database path (default: in memory)")
	flag.StringVar(&flags.Devices, "device", "", "Comma separated device names to host")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write a protocol log to this file")
	flag.BoolVar(&flags.Simulate, "simulate", false, "Change event_change_tst periodically")
	flag.DurationVar(&flags.SimInterval, "sim-interval", time.Second, "Simulation step interval")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stderr)

	if err := run(cfg, logger); err != nil {
		logger.Error("device server failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies the flags.
func loadConfig() (*config.File, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(flags.ConfigFile); err != nil {
			return nil, err
		}
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Instance, flags.Instance)
	set(&cfg.Server.Endpoint, flags.Endpoint)
	set(&cfg.Server.EventEndpoint, flags.EventEndpoint)
	set(&cfg.Server.Store, flags.Store)
	set(&cfg.LogLevel, flags.LogLevel)
	set(&cfg.ProtocolLog, flags.ProtocolLog)
	if flags.Devices != "" {
		cfg.Server.Devices = nil
		for _, name := range strings.Split(flags.Devices, ",") {
			cfg.Server.Devices = append(cfg.Server.Devices, config.Device{Name: strings.TrimSpace(name)})
		}
	}

	if _, err := config.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.File, logger *slog.Logger) error {
	sessionID := uuid.NewString()

	var store property.Store = property.NewMemoryStore()
	if cfg.Server.Store != "" {
		ss, err := property.OpenStormStore(cfg.Server.Store)
		if err != nil {
			return fmt.Errorf("opening property store: %w", err)
		}
		store = ss
	}
	defer store.Close()

	protoLog, closeLog, err := protocolLogger(cfg.ProtocolLog, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	dsCfg := cfg.Server.DevServer()
	dsCfg.Store = store
	dsCfg.Logger = logger
	dsCfg.ProtocolLogger = protoLog
	dsCfg.SessionID = sessionID
	srv := devserver.NewServer(dsCfg)
	defer srv.Close()

	var devices []*devserver.TestDevice
	for _, d := range cfg.Server.Devices {
		td, err := srv.AddTestDevice(d.Name)
		if err != nil {
			return fmt.Errorf("adding %s: %w", d.Name, err)
		}
		devices = append(devices, td)
		for _, p := range d.Polling {
			if err := srv.StartPolling(td.Name(), p.Name, p.Command, p.Period); err != nil {
				return fmt.Errorf("polling %s/%s: %w", td.Name(), p.Name, err)
			}
		}
	}

	zcfg := cfg.Server.ZMQ()
	zcfg.Logger = logger
	zs, err := zmq.NewServer(srv, zcfg)
	if err != nil {
		return err
	}
	defer zs.Close()
	srv.SetPublisher(zs)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv.Start(ctx)

	logger.Info("device server started",
		"admin", srv.AdminName(),
		"devices", srv.Devices(),
		"endpoint", zcfg.Endpoint,
		"events", zcfg.EventEndpoint,
		"session", sessionID)

	if flags.Simulate {
		go runSimulation(ctx, devices, flags.SimInterval, logger)
	}

	err = zs.Serve(ctx)
	logger.Info("shutting down")
	return err
}

// protocolLogger opens the protocol log file. At debug level events are
// also written to the operational log.
func protocolLogger(path string, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeFn := func() {}
	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening protocol log: %w", err)
		}
		loggers = append(loggers, fl)
		closeFn = func() { _ = fl.Close() }
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}
	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	}
	return log.NewMultiLogger(loggers...), closeFn, nil
}
