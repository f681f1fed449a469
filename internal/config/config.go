// Package config loads handover-node configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nfchandover/handover-go/pkg/connection"
	"github.com/nfchandover/handover-go/pkg/handover"
	"github.com/nfchandover/handover-go/pkg/session"
)

// Adapter kinds.
const (
	AdapterBlueZ = "bluez"
	AdapterTCP   = "tcp"
)

// Config is the complete node configuration.
type Config struct {
	// AppLink is written into published handshakes.
	AppLink string `yaml:"app_link"`

	Adapter   AdapterConfig   `yaml:"adapter"`
	Session   SessionConfig   `yaml:"session"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Tag       TagConfig       `yaml:"tag"`
	State     StateConfig     `yaml:"state"`
	Log       LogConfig       `yaml:"log"`
}

// AdapterConfig selects and configures the transport.
type AdapterConfig struct {
	// Kind is "bluez" or "tcp".
	Kind string `yaml:"kind"`

	// Controller is the BlueZ controller, e.g. "hci0".
	Controller string `yaml:"controller"`

	// Address is the local address for the tcp adapter. The bluez adapter
	// reads it from the controller.
	Address string `yaml:"address"`

	// Name is the device name sent to tcp peers.
	Name string `yaml:"name"`

	// ListenHost and Port bind tcp listeners.
	ListenHost string `yaml:"listen_host"`
	Port       int    `yaml:"port"`
}

// SessionConfig mirrors session.Config.
type SessionConfig struct {
	ServiceID      string                   `yaml:"service_id"`
	ConnectTimeout time.Duration            `yaml:"connect_timeout"`
	AcceptRetries  int                      `yaml:"accept_retries"`
	AcceptBackoff  connection.BackoffConfig `yaml:"accept_backoff"`
	ReadBufferSize int                      `yaml:"read_buffer_size"`
}

// DiscoveryConfig configures peer resolution for the tcp adapter.
type DiscoveryConfig struct {
	// MDNS enables zeroconf advertising and browsing.
	MDNS bool `yaml:"mdns"`

	// Interface restricts mDNS to one network interface.
	Interface string `yaml:"interface"`

	// Peers are static address to endpoint mappings, tried before mDNS.
	Peers []StaticPeer `yaml:"peers"`
}

// StaticPeer maps a peer address to a TCP endpoint.
type StaticPeer struct {
	Address string `yaml:"address"`
	Host    string `yaml:"host"`
	Port    uint16 `yaml:"port"`
}

// TagConfig configures the tag directory.
type TagConfig struct {
	Dir string `yaml:"dir"`
}

// StateConfig configures persistent state.
type StateConfig struct {
	// Dir holds peers.json. Empty disables persistence.
	Dir string `yaml:"dir"`
}

// PeersFile returns the path of the peer state file, or "".
func (s StateConfig) PeersFile() string {
	if s.Dir == "" {
		return ""
	}
	return filepath.Join(s.Dir, "peers.json")
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// File additionally writes operational logs to this path, rotated.
	File     string         `yaml:"file"`
	Rotation RotationConfig `yaml:"rotation"`

	// Protocol is the path of the protocol log file. Empty disables it.
	Protocol string `yaml:"protocol"`
}

// RotationConfig bounds the operational log file.
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// LoadError describes a configuration file that could not be used.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.File + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Default returns the built-in configuration.
func Default() Config {
	sess := session.DefaultConfig()
	return Config{
		AppLink: "https://example.com/handover",
		Adapter: AdapterConfig{
			Kind:       AdapterBlueZ,
			Controller: "hci0",
		},
		Session: SessionConfig{
			ServiceID:      sess.ServiceID.String(),
			ConnectTimeout: sess.ConnectTimeout,
			AcceptRetries:  sess.AcceptRetries,
			AcceptBackoff:  sess.AcceptBackoff,
			ReadBufferSize: sess.ReadBufferSize,
		},
		Tag: TagConfig{Dir: "tag"},
		Log: LogConfig{
			Level:  "info",
			Format: FormatText,
			Rotation: RotationConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, &LoadError{File: path, Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &LoadError{File: path, Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	switch c.Adapter.Kind {
	case AdapterBlueZ:
	case AdapterTCP:
		if _, err := handover.ParseAddress(c.Adapter.Address); err != nil {
			errs = append(errs, fmt.Errorf("adapter.address: %w", err))
		}
		if c.Adapter.Port < 0 || c.Adapter.Port > 65535 {
			errs = append(errs, fmt.Errorf("adapter.port: out of range: %d", c.Adapter.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.kind: unknown adapter %q", c.Adapter.Kind))
	}

	if _, err := uuid.Parse(c.Session.ServiceID); err != nil {
		errs = append(errs, fmt.Errorf("session.service_id: %w", err))
	}
	if c.Session.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("session.connect_timeout: must be positive"))
	}
	if c.Session.AcceptRetries < 1 {
		errs = append(errs, errors.New("session.accept_retries: must be at least 1"))
	}
	if c.Session.ReadBufferSize < 1 {
		errs = append(errs, errors.New("session.read_buffer_size: must be at least 1"))
	}

	for i, p := range c.Discovery.Peers {
		if _, err := handover.ParseAddress(p.Address); err != nil {
			errs = append(errs, fmt.Errorf("discovery.peers[%d].address: %w", i, err))
		}
		if p.Host == "" || p.Port == 0 {
			errs = append(errs, fmt.Errorf("discovery.peers[%d]: host and port are required", i))
		}
	}

	if c.Tag.Dir == "" {
		errs = append(errs, errors.New("tag.dir: required"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if r := c.Log.Rotation; r.MaxSizeMB < 0 || r.MaxBackups < 0 || r.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log.rotation: limits must not be negative"))
	}

	return errors.Join(errs...)
}

// SessionConfig converts the session section. Call Validate first.
func (c *Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	if id, err := uuid.Parse(c.Session.ServiceID); err == nil {
		cfg.ServiceID = id
	}
	cfg.ConnectTimeout = c.Session.ConnectTimeout
	cfg.AcceptRetries = c.Session.AcceptRetries
	cfg.AcceptBackoff = c.Session.AcceptBackoff
	cfg.ReadBufferSize = c.Session.ReadBufferSize
	return cfg
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
		return 0, fmt.Errorf("unknown level %q", s)
	}
}
