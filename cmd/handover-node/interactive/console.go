// Package interactive provides the interactive command-line interface
// for handover-node.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/nfchandover/handover-go/pkg/handover"
	"github.com/nfchandover/handover-go/pkg/ndef"
	"github.com/nfchandover/handover-go/pkg/persistence"
	"github.com/nfchandover/handover-go/pkg/session"
)

// Console handles interactive mode for handover-node.
type Console struct {
	manager      *session.Manager
	orchestrator *handover.Orchestrator
	appLink      string
	peers        *persistence.PeerStore

	rl  *readline.Instance
	out io.Writer
}

// New creates a console reading from the terminal.
func New(manager *session.Manager, orchestrator *handover.Orchestrator, appLink string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "handover> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := NewWithWriter(manager, orchestrator, appLink, rl.Stdout())
	c.rl = rl
	return c, nil
}

// NewWithWriter creates a console without a terminal; commands are fed
// through Exec and output goes to out.
func NewWithWriter(manager *session.Manager, orchestrator *handover.Orchestrator, appLink string, out io.Writer) *Console {
	return &Console{
		manager:      manager,
		orchestrator: orchestrator,
		appLink:      appLink,
		out:          out,
	}
}

// SetPeerStore enables the peers and reconnect commands.
func (c *Console) SetPeerStore(store *persistence.PeerStore) { c.peers = store }

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer { return c.out }

// Run reads commands until quit, EOF or ctx is done, then calls cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Exec(ctx, line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns true for quit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "listen", "l":
		c.cmdListen(ctx, args)
	case "tap", "t":
		c.cmdTap(ctx, args)
	case "connect", "c":
		c.cmdConnect(args)
	case "send", "s":
		c.cmdSend(input, args)
	case "reconnect", "r":
		c.cmdReconnect()
	case "peers":
		c.cmdPeers()
	case "status":
		c.cmdStatus()
	case "stop":
		c.cmdStop()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Handover Commands:
  listen [uri]       - Listen and publish a handshake (default app link from config)
  tap <file>         - Read a tag message from a file, as if tapped
  connect <address>  - Dial a peer directly, skipping the tag
  reconnect          - Dial the most recently connected peer
  peers              - List known peers
  send <text>        - Send text to the connected peer
  status             - Show session status
  stop               - End the current session
  help               - Show this help
  quit               - Exit`)
}

func (c *Console) cmdListen(ctx context.Context, args []string) {
	appLink := c.appLink
	if len(args) > 0 {
		appLink = args[0]
	}
	hs, err := c.orchestrator.BeginLocalHandover(ctx, appLink)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Listening as %s, session %s\n", hs.PeerAddress, hs.SessionID)
}

func (c *Console) cmdTap(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: tap <file>")
		return
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Tag: %s\n", ndef.HexString(data))
	if err := c.orchestrator.OnHandoverDetected(ctx, data); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

func (c *Console) cmdConnect(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: connect <address>")
		return
	}
	addr, err := handover.ParseAddress(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := c.manager.Connect(addr); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

// cmdSend sends the rest of the line verbatim, inner spaces included.
func (c *Console) cmdSend(input string, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: send <text>")
		return
	}
	text := strings.TrimSpace(input[len(strings.Fields(input)[0]):])
	if err := c.manager.Write([]byte(text)); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

func (c *Console) cmdReconnect() {
	if c.peers == nil {
		fmt.Fprintln(c.out, "No state directory configured")
		return
	}
	last, err := c.peers.Last()
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if last == nil {
		fmt.Fprintln(c.out, "No known peers")
		return
	}
	fmt.Fprintf(c.out, "Reconnecting to %s %s\n", last.Address, last.Name)
	if err := c.manager.Connect(last.Address); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

func (c *Console) cmdPeers() {
	if c.peers == nil {
		fmt.Fprintln(c.out, "No state directory configured")
		return
	}
	state, err := c.peers.Load()
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if state == nil || len(state.Peers) == 0 {
		fmt.Fprintln(c.out, "No known peers")
		return
	}
	for _, p := range state.Peers {
		fmt.Fprintf(c.out, "  %s  %-16s  %d connection(s), last %s\n",
			p.Address, p.Name, p.Connections, p.LastConnectedAt.Format(time.RFC3339))
	}
}

func (c *Console) cmdStatus() {
	fmt.Fprintf(c.out, "State:      %s\n", c.manager.State())
	fmt.Fprintf(c.out, "Local:      %s\n", c.manager.LocalAddress())
	if peer := c.manager.PeerAddress(); peer != "" {
		fmt.Fprintf(c.out, "Peer:       %s %s\n", peer, c.manager.PeerName())
	}
	if id := c.orchestrator.SessionID(); id != uuid.Nil {
		fmt.Fprintf(c.out, "Session:    %s\n", id)
	}
	if conn := c.manager.ConnectionID(); conn != "" {
		fmt.Fprintf(c.out, "Connection: %s\n", conn)
	}
}

func (c *Console) cmdStop() {
	if err := c.manager.Stop(); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}
