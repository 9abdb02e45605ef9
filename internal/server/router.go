package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"devharness/internal/shared/logger"
)

var (
	// ErrInvalidTarget is returned for a send whose index is malformed,
	// negative or outside the current snapshot.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrUnknownCommand is returned for operator input that matches no command.
	ErrUnknownCommand = errors.New("unknown command")
)

// HelpText lists the operator commands. Indices come from the most recent
// `list` output and are only valid for the lifetime of one command.
const HelpText = `commands:
  list                 list connected clients
  send <index> <text>  send text to one client by list index
  broadcast <text>     send text to every connected client
  help                 show this help
  exit                 stop the server`

// Router resolves operator commands against point-in-time registry
// snapshots. It never mutates the registry itself; membership changes flow
// exclusively through the acceptor and each connection's own teardown.
type Router struct {
	registry *Registry
	log      zerolog.Logger
}

func NewRouter(registry *Registry) *Router {
	return &Router{
		registry: registry,
		log:      logger.WithComponent("router"),
	}
}

// Execute runs one command line and returns the operator-facing result.
// Errors are recoverable: the console reports them and keeps running.
func (r *Router) Execute(line string) (string, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", nil
	case line == "list":
		return r.list(), nil
	case line == "help":
		return HelpText, nil
	case strings.HasPrefix(line, "send "):
		return r.send(line)
	case strings.HasPrefix(line, "broadcast "):
		return r.broadcast(strings.TrimPrefix(line, "broadcast ")), nil
	default:
		return "", fmt.Errorf("%w: %q (try 'help')", ErrUnknownCommand, line)
	}
}

func (r *Router) list() string {
	entries := r.registry.Snapshot()
	if len(entries) == 0 {
		return "no clients connected"
	}
	var b strings.Builder
	b.WriteString("connected clients:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n  [%d] %s", e.Index, e.Addr)
	}
	return b.String()
}

func (r *Router) send(line string) (string, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("%w: usage: send <index> <text>", ErrInvalidTarget)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: index %q is not a number", ErrInvalidTarget, parts[1])
	}

	entries := r.registry.Snapshot()
	if idx < 0 || idx >= len(entries) {
		return "", fmt.Errorf("%w: no client at index %d", ErrInvalidTarget, idx)
	}

	entry := entries[idx]
	if err := entry.Conn.Send([]byte(parts[2])); err != nil {
		// The failed connection is torn down here so the next snapshot no
		// longer lists it.
		entry.Conn.Close()
		return "", fmt.Errorf("send to %s failed: %w", entry.Addr, err)
	}
	return fmt.Sprintf("message sent to %s", entry.Addr), nil
}

// broadcast sends to every entry of one snapshot. Partial failures are
// tolerated; the result reports succeeded/total instead of failing the whole
// operation on the first error.
func (r *Router) broadcast(message string) string {
	entries := r.registry.Snapshot()
	if len(entries) == 0 {
		return "no clients connected"
	}

	failed := 0
	for _, e := range entries {
		if err := e.Conn.Send([]byte(message)); err != nil {
			r.log.Warn().Err(err).Str("remote_addr", e.Addr).Msg("Broadcast send failed.")
			e.Conn.Close()
			failed++
		}
	}
	return fmt.Sprintf("broadcast delivered to %d/%d clients", len(entries)-failed, len(entries))
}
