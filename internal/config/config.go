// Package config loads the YAML configuration shared by the tango commands.
//
// A file describes a device server, a client, or both:
//
//	log_level: debug
//	protocol_log: /tmp/devsim.tlog
//	server:
//	  instance: test
//	  endpoint: tcp://*:10000
//	  event_endpoint: tcp://*:10001
//	  store: /var/lib/tango/devsim.db
//	  keep_alive: 10s
//	  devices:
//	    - name: sys/tg_test/1
//	      polling:
//	        - name: double_scalar
//	          period: 200ms
//	client:
//	  endpoint: tcp://localhost:10000
//	  event_endpoint: tcp://localhost:10001
//	  timeout: 3s
//
// Durations use Go syntax ("250ms", "10s").
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tango-controls/tango-go/pkg/client"
	"github.com/tango-controls/tango-go/pkg/devserver"
	"github.com/tango-controls/tango-go/pkg/transport/zmq"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// File is the root of a configuration file.
type File struct {
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// ProtocolLog is the path of a protocol log file. Empty disables it.
	ProtocolLog string `yaml:"protocol_log"`

	Server Server `yaml:"server"`
	Client Client `yaml:"client"`
}

// Server configures a device server.
type Server struct {
	Instance      string        `yaml:"instance"`
	Endpoint      string        `yaml:"endpoint"`
	EventEndpoint string        `yaml:"event_endpoint"`
	KeepAlive     time.Duration `yaml:"keep_alive"`

	// Store is the path of the property database. Empty keeps properties
	// in memory.
	Store string `yaml:"store"`

	Devices []Device `yaml:"devices"`
}

// Device is a simulated device hosted by the server.
type Device struct {
	Name    string    `yaml:"name"`
	Polling []Polling `yaml:"polling"`
}

// Polling is an object polled from startup.
type Polling struct {
	Name    string        `yaml:"name"`
	Command bool          `yaml:"command"`
	Period  time.Duration `yaml:"period"`
}

// Client configures a client session.
type Client struct {
	Endpoint      string        `yaml:"endpoint"`
	EventEndpoint string        `yaml:"event_endpoint"`
	Timeout       time.Duration `yaml:"timeout"`
	KeepAlive     time.Duration `yaml:"keep_alive"`
}

// LoadError reports a configuration file that could not be used.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File == "" {
		return msg
	}
	return e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns the configuration used when no file is given: one
// TangoTest device served on the default ZMQ endpoints.
func Default() *File {
	zs := zmq.DefaultServerConfig()
	zc := zmq.DefaultClientConfig()
	ds := devserver.DefaultConfig()
	cc := client.DefaultConfig()
	return &File{
		LogLevel: "info",
		Server: Server{
			Instance:      ds.Instance,
			Endpoint:      zs.Endpoint,
			EventEndpoint: zs.EventEndpoint,
			KeepAlive:     ds.KeepAlivePeriod,
			Devices:       []Device{{Name: "sys/tg_test/1"}},
		},
		Client: Client{
			Endpoint:      zc.Endpoint,
			EventEndpoint: zc.EventEndpoint,
			Timeout:       cc.Timeout,
			KeepAlive:     cc.KeepAlivePeriod,
		},
	}
}

// Parse parses a configuration over the defaults.
func Parse(data []byte) (*File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	f, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	return f, nil
}

func (f *File) validate() error {
	if _, err := ParseLevel(f.LogLevel); err != nil {
		return &LoadError{Message: err.Error()}
	}
	seen := make(map[string]bool)
	for i, d := range f.Server.Devices {
		name := wire.NormalizeName(d.Name)
		if strings.Count(name, "/") != 2 {
			return &LoadError{Message: fmt.Sprintf("devices[%d]: invalid device name %q", i, d.Name)}
		}
		if seen[name] {
			return &LoadError{Message: fmt.Sprintf("devices[%d]: duplicate device %q", i, d.Name)}
		}
		seen[name] = true
		for j, p := range d.Polling {
			if p.Name == "" || p.Period <= 0 {
				return &LoadError{Message: fmt.Sprintf("devices[%d].polling[%d]: name and a positive period are required", i, j)}
			}
		}
	}
	if f.Client.Timeout < 0 {
		return &LoadError{Message: "client timeout must not be negative"}
	}
	return nil
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger returns a text logger writing to w at the configured level.
func (f *File) Logger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(f.LogLevel)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// DevServer returns the device server configuration.
func (s Server) DevServer() devserver.Config {
	cfg := devserver.DefaultConfig()
	if s.Instance != "" {
		cfg.Instance = s.Instance
	}
	if s.KeepAlive > 0 {
		cfg.KeepAlivePeriod = s.KeepAlive
	}
	return cfg
}

// ZMQ returns the ZMQ server configuration.
func (s Server) ZMQ() zmq.ServerConfig {
	cfg := zmq.DefaultServerConfig()
	if s.Endpoint != "" {
		cfg.Endpoint = s.Endpoint
	}
	if s.EventEndpoint != "" {
		cfg.EventEndpoint = s.EventEndpoint
	}
	return cfg
}

// Session returns the client session configuration.
func (c Client) Session() client.Config {
	cfg := client.DefaultConfig()
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	if c.KeepAlive != 0 {
		cfg.KeepAlivePeriod = c.KeepAlive
	}
	return cfg
}

// ZMQ returns the ZMQ client configuration.
func (c Client) ZMQ() zmq.ClientConfig {
	cfg := zmq.DefaultClientConfig()
	if c.Endpoint != "" {
		cfg.Endpoint = c.Endpoint
	}
	if c.EventEndpoint != "" {
		cfg.EventEndpoint = c.EventEndpoint
	}
	return cfg
}
