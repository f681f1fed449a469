// Command handover-node runs one side of a tag-initiated handover.
//
// The node publishes its handshake by writing an NDEF message to the
// outbox of a tag directory, and watches the tag inbox for handshakes of
// other nodes. Reading a peer's handshake dials the peer over the
// configured transport; the peer's listener accepts and both sides end up
// in the CONNECTED state.
//
// Usage:
//
//	handover-node [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-adapter string       Transport adapter: bluez, tcp (default "bluez")
//	-controller string    BlueZ controller (default "hci0")
//	-address string       Local address for the tcp adapter
//	-name string          Local device name for the tcp adapter
//	-port int             TCP listen port for the tcp adapter
//	-mdns                 Advertise and resolve peers over mDNS (tcp adapter)
//	-tag-dir string       Tag directory (default "tag")
//	-app-link string      App link published in handshakes
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-log-file string      Also write logs to this file, rotated
//	-protocol-log string  Write protocol events to this file (.hlog)
//	-state-dir string     Directory for persistent state (known peers)
//	-reset                Clear all persisted state before starting
//	-listen               Publish a handshake on startup
//	-interactive          Enable interactive command mode
//
// Examples:
//
//	# Two nodes on one machine, sharing a tag directory
//	handover-node -adapter tcp -address AA:AA:AA:AA:AA:AA -port 7701 -mdns -tag-dir /tmp/a -listen
//	handover-node -adapter tcp -address BB:BB:BB:BB:BB:BB -port 7702 -mdns -tag-dir /tmp/b -interactive
//	handover> tap /tmp/a/outbox.ndef
//
//	# Bluetooth node with a protocol log
//	handover-node -controller hci0 -protocol-log /var/log/handover.hlog -interactive
//
// Interactive Commands:
//
//	listen [uri]   - Listen and publish a handshake
//	tap <file>     - Read a tag message from a file
//	connect <addr> - Dial a peer directly
//	reconnect      - Dial the most recently connected peer
//	peers          - List known peers
//	send <text>    - Send text to the peer
//	status         - Show session status
//	stop           - End the session
//	quit           - Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nfchandover/handover-go/cmd/handover-node/interactive"
	"github.com/nfchandover/handover-go/internal/config"
	"github.com/nfchandover/handover-go/internal/logging"
	"github.com/nfchandover/handover-go/pkg/connection"
	"github.com/nfchandover/handover-go/pkg/discovery"
	"github.com/nfchandover/handover-go/pkg/handover"
	"github.com/nfchandover/handover-go/pkg/log"
	"github.com/nfchandover/handover-go/pkg/nfc"
	"github.com/nfchandover/handover-go/pkg/persistence"
	"github.com/nfchandover/handover-go/pkg/session"
	"github.com/nfchandover/handover-go/pkg/transport"
	"github.com/nfchandover/handover-go/pkg/transport/bluez"
	"github.com/nfchandover/handover-go/pkg/transport/tcp"
)

// Flags holds the command-line flags. Flags given explicitly override the
// configuration file.
type Flags struct {
	ConfigFile  string
	Adapter     string
	Controller  string
	Address     string
	Name        string
	Port        int
	MDNS        bool
	TagDir      string
	AppLink     string
	LogLevel    string
	LogFile     string
	ProtocolLog string
	StateDir    string
	Reset       bool
	Listen      bool
	Interactive bool
}

var flags Flags

func init() {
	def := config.Default()

	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Adapter, "adapter", def.Adapter.Kind, "Transport adapter: bluez, tcp")
	flag.StringVar(&flags.Controller, "controller", def.Adapter.Controller, "BlueZ controller")
	flag.StringVar(&flags.Address, "address", "", "Local address for the tcp adapter")
	flag.StringVar(&flags.Name, "name", "", "Local device name for the tcp adapter")
	flag.IntVar(&flags.Port, "port", 0, "TCP listen port for the tcp adapter")
	flag.BoolVar(&flags.MDNS, "mdns", false, "Advertise and resolve peers over mDNS (tcp adapter)")
	flag.StringVar(&flags.TagDir, "tag-dir", def.Tag.Dir, "Tag directory")
	flag.StringVar(&flags.AppLink, "app-link", def.AppLink, "App link published in handshakes")
	flag.StringVar(&flags.LogLevel, "log-level", def.Log.Level, "Log level: debug, info, warn, error")
	flag.StringVar(&flags.LogFile, "log-file", "", "Also write logs to this file, rotated")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write protocol events to this file (.hlog)")
	flag.StringVar(&flags.StateDir, "state-dir", "", "Directory for persistent state (known peers)")
	flag.BoolVar(&flags.Reset, "reset", false, "Clear all persisted state before starting")
	flag.BoolVar(&flags.Listen, "listen", false, "Publish a handshake on startup")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logOut := &switchWriter{w: os.Stderr}
	logger, logCloser, err := logging.Setup(cfg.Log, logOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger, logOut); err != nil {
		logger.Error("handover-node failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies explicitly
// set flags on top.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(flags.ConfigFile); err != nil {
			return config.Config{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "adapter":
			cfg.Adapter.Kind = flags.Adapter
		case "controller":
			cfg.Adapter.Controller = flags.Controller
		case "address":
			cfg.Adapter.Address = flags.Address
		case "name":
			cfg.Adapter.Name = flags.Name
		case "port":
			cfg.Adapter.Port = flags.Port
		case "mdns":
			cfg.Discovery.MDNS = flags.MDNS
		case "tag-dir":
			cfg.Tag.Dir = flags.TagDir
		case "app-link":
			cfg.AppLink = flags.AppLink
		case "log-level":
			cfg.Log.Level = flags.LogLevel
		case "log-file":
			cfg.Log.File = flags.LogFile
		case "protocol-log":
			cfg.Log.Protocol = flags.ProtocolLog
		case "state-dir":
			cfg.State.Dir = flags.StateDir
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg config.Config, logger *slog.Logger, logOut *switchWriter) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plog, closeLog, err := protocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	adapter, closeAdapter, err := openAdapter(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAdapter()

	logger.Info("handover node starting",
		"adapter", cfg.Adapter.Kind,
		"address", adapter.Address(),
		"tag_dir", cfg.Tag.Dir)

	sessCfg := cfg.SessionConfig()
	sessCfg.Logger = logger
	sessCfg.ProtocolLogger = plog
	manager := session.NewManager(adapter, sessCfg)

	tag, err := nfc.NewDirTag(cfg.Tag.Dir, logger)
	if err != nil {
		return err
	}
	orch := handover.NewOrchestrator(manager, tag, nfc.LogPassthrough{Logger: logger},
		handover.OrchestratorConfig{Logger: logger, ProtocolLogger: plog})

	watcher, err := nfc.NewWatcher(tag.InboxDir(), func(ctx context.Context, data []byte) error {
		err := orch.OnHandoverDetected(ctx, data)
		if err != nil {
			logger.Warn("tag ignored", "error", err)
		}
		return err
	}, nfc.WithLogger(logger))
	if err != nil {
		return err
	}
	defer watcher.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("tag watcher stopped", "error", err)
			cancel()
		}
	}()

	peers := openPeerStore(cfg, logger)

	var out io.Writer = os.Stdout
	if flags.Interactive {
		ic, err := interactive.New(manager, orch, cfg.AppLink)
		if err != nil {
			return err
		}
		if peers != nil {
			ic.SetPeerStore(peers)
		}
		// Keep log lines from tearing the prompt.
		out = ic.Stdout()
		logOut.Set(out)
		go ic.Run(ctx, cancel)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range manager.Events() {
			fmt.Fprintln(out, interactive.FormatEvent(ev))
			if peers != nil && ev.Type == session.EventStateChange && ev.To == connection.StateConnected {
				if err := peers.Record(ev.PeerAddress, ev.PeerName, ev.SessionID, time.Now()); err != nil {
					logger.Warn("failed to record peer", "error", err)
				}
			}
		}
	}()

	if flags.Listen {
		if _, err := orch.BeginLocalHandover(ctx, cfg.AppLink); err != nil {
			logger.Error("failed to publish handshake", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancel()
	if err := manager.Close(); err != nil {
		logger.Warn("session close", "error", err)
	}
	wg.Wait()
	return nil
}

// openPeerStore returns the known-peers store, or nil without a state
// directory.
func openPeerStore(cfg config.Config, logger *slog.Logger) *persistence.PeerStore {
	path := cfg.State.PeersFile()
	if path == "" {
		return nil
	}
	logger.Info("using state directory", "dir", cfg.State.Dir)
	store := persistence.NewPeerStore(path)
	if flags.Reset {
		logger.Info("resetting persisted state")
		if err := store.Clear(); err != nil {
			logger.Warn("failed to clear state", "error", err)
		}
	}
	return store
}

// protocolLogger builds the protocol event sink: the .hlog file if
// configured, plus slog at debug level.
func protocolLogger(cfg config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeFn := func() {}

	if cfg.Log.Protocol != "" {
		fl, err := log.NewFileLogger(cfg.Log.Protocol)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				logger.Warn("protocol log incomplete", "path", cfg.Log.Protocol, "error", err)
			}
		}
		logger.Info("protocol logging enabled", "path", cfg.Log.Protocol)
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	if len(loggers) == 0 {
		return nil, closeFn, nil
	}
	return log.NewMultiLogger(loggers...), closeFn, nil
}

// openAdapter opens the configured transport.
func openAdapter(cfg config.Config, logger *slog.Logger) (transport.Adapter, func(), error) {
	switch cfg.Adapter.Kind {
	case config.AdapterBlueZ:
		a, err := bluez.Open(bluez.Config{
			Adapter:     cfg.Adapter.Controller,
			ProfileName: "Handover",
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open bluez adapter: %w", err)
		}
		return a, func() { _ = a.Close() }, nil

	case config.AdapterTCP:
		static := discovery.NewStaticResolver()
		serviceID := cfg.SessionConfig().ServiceID
		for _, p := range cfg.Discovery.Peers {
			static.Add(p.Address, serviceID, p.Host, p.Port)
		}
		resolvers := discovery.ChainResolver{static}

		tcpCfg := tcp.Config{
			Address:    cfg.Adapter.Address,
			Name:       cfg.Adapter.Name,
			ListenHost: cfg.Adapter.ListenHost,
			Port:       cfg.Adapter.Port,
			Logger:     logger,
		}

		closeFn := func() {}
		if cfg.Discovery.MDNS {
			browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: cfg.Discovery.Interface})
			resolvers = append(resolvers, browser)

			advCfg := discovery.DefaultAdvertiserConfig()
			advCfg.Interface = cfg.Discovery.Interface
			advertiser := discovery.NewMDNSAdvertiser(advCfg)
			tcpCfg.Advertiser = advertiser

			closeFn = func() {
				advertiser.StopAll()
				browser.Stop()
			}
		}
		tcpCfg.Resolver = resolvers

		a, err := tcp.New(tcpCfg)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return a, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", cfg.Adapter.Kind)
	}
}

// switchWriter is an io.Writer whose target can be replaced while loggers
// hold it.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Set replaces the target.
func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
