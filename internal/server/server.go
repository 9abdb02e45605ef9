package server

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"devharness/internal/service/web"
	"devharness/internal/shared/logger"
	"devharness/internal/shared/types"
)

// Server composes the registry, acceptor, command router and operator
// console, and owns the lifecycle of all of them. The registry is the only
// shared mutable state; everything else communicates through it.
type Server struct {
	cfg      *types.Config
	registry *Registry
	acceptor *Acceptor
	router   *Router
	hub      *web.Hub // nil when the monitoring endpoint is disabled
	log      zerolog.Logger

	done chan struct{}
	// acceptGroup tracks only the accept loop; waitGroup tracks the read
	// loops and the stats feed. Stop joins them in that order so the registry
	// snapshot it closes connections from is complete.
	acceptGroup sync.WaitGroup
	waitGroup   sync.WaitGroup
	stopOnce    sync.Once
}

func New(cfg *types.Config) *Server {
	s := &Server{
		cfg:      cfg,
		registry: NewRegistry(),
		done:     make(chan struct{}),
		log:      logger.WithComponent("server"),
	}

	var events EventSink
	if cfg.WebConf.Port > 0 {
		s.hub = web.NewHub()
		events = &hubSink{hub: s.hub}
	}

	s.acceptor = newAcceptor(cfg.ListenConf, s.registry, events, s.done, &s.waitGroup)
	s.router = NewRouter(s.registry)
	return s
}

// Listen binds the listening socket and returns the bound port. Must be
// called before Serve; a failure means the server does not start.
func (s *Server) Listen() (int, error) {
	return s.acceptor.Listen()
}

// Serve starts the accept loop and, when enabled, the monitoring endpoint and
// its stats feed. It does not block.
func (s *Server) Serve() {
	s.acceptGroup.Add(1)
	go func() {
		defer s.acceptGroup.Done()
		s.acceptor.acceptLoop()
	}()

	if s.hub != nil {
		go s.hub.Run()
		web.StartServer(s.cfg.WebConf, s, s.hub)

		s.waitGroup.Add(1)
		go s.statsLoop()
	}
}

// RunConsole blocks on the operator input until `exit` or the input closes.
func (s *Server) RunConsole(in io.Reader, out io.Writer) {
	NewConsole(s.router, out, s.Stop).Run(in)
}

// Router exposes the command router, mainly for driving commands in tests.
func (s *Server) Router() *Router {
	return s.router
}

// Registry exposes the connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Stop shuts the harness down exactly once, in two phases. First the accept
// loop is signalled, the listener closed and the loop joined: a connection
// accepted just before the closure still registers, but only before the loop
// exits. Only then is the registry snapshotted and every connection closed
// (each read loop observes the closure and deregisters itself), so the
// snapshot cannot miss an in-flight registration. Finally the read loops are
// joined. Safe to call concurrently with ongoing accepts and sends.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info().Msg("Stopping harness...")
		close(s.done)
		s.acceptor.Close()
		s.acceptGroup.Wait()

		for _, entry := range s.registry.Snapshot() {
			entry.Conn.Close()
		}

		s.waitGroup.Wait()
		s.log.Info().Msg("Harness stopped.")
	})
}

// statsLoop periodically broadcasts the live connection count to monitors.
func (s *Server) statsLoop() {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.hub.BroadcastStats(&web.HarnessStats{
				Timestamp:         time.Now(),
				ActiveConnections: s.registry.Len(),
			})
		case <-s.done:
			return
		}
	}
}

// ClientSnapshot implements web.SnapshotProvider.
func (s *Server) ClientSnapshot() []web.ClientInfo {
	entries := s.registry.Snapshot()
	infos := make([]web.ClientInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, web.ClientInfo{
			Index:      e.Index,
			ConnID:     e.Conn.ID(),
			RemoteAddr: e.Addr,
		})
	}
	return infos
}

// hubSink adapts the monitoring hub to the connection-level event sink.
type hubSink struct {
	hub *web.Hub
}

func (h *hubSink) ConnEvent(connID, remoteAddr, kind, detail string) {
	h.hub.BroadcastEvent(&web.ClientEvent{
		Timestamp:  time.Now(),
		ConnID:     connID,
		RemoteAddr: remoteAddr,
		Kind:       kind,
		Detail:     detail,
	})
}
