package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"devharness/internal/shared/logger"
	"devharness/internal/shared/types"
)

// acceptInterval bounds each wait for a new connection so the accept loop
// observes a shutdown signal within one interval instead of blocking forever.
const acceptInterval = 1 * time.Second

// Acceptor binds the listening socket, accepts device streams and hands each
// one to the registry with its own read loop goroutine. Accepting never
// blocks on an individual connection's processing.
type Acceptor struct {
	cfg      types.ListenConf
	registry *Registry
	events   EventSink
	done     <-chan struct{}
	wg       *sync.WaitGroup
	log      zerolog.Logger

	tcpLn *net.TCPListener
	ln    net.Listener
}

func newAcceptor(cfg types.ListenConf, registry *Registry, events EventSink, done <-chan struct{}, wg *sync.WaitGroup) *Acceptor {
	return &Acceptor{
		cfg:      cfg,
		registry: registry,
		events:   events,
		done:     done,
		wg:       wg,
		log:      logger.WithComponent("acceptor"),
	}
}

// Listen binds the configured address and returns the bound port. Port 0
// allocates a dynamic port, which is what the returned value is for. A bind
// failure here is fatal to startup; the server never runs.
func (a *Acceptor) Listen() (int, error) {
	listenAddr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return 0, fmt.Errorf("harness failed to listen on %s: %w", listenAddr, err)
	}
	a.tcpLn = ln.(*net.TCPListener)
	a.ln = netutil.LimitListener(a.tcpLn, a.cfg.MaxConnections)

	port := a.tcpLn.Addr().(*net.TCPAddr).Port
	a.log.Info().Str("listen_addr", a.tcpLn.Addr().String()).Msg(">>> Harness is listening.")
	return port, nil
}

// acceptLoop must run after Listen. It exits when the shutdown signal fires
// or the listener is closed; any other accept error is logged and tolerated.
// Registration happens inside this loop, so once it has exited no further
// connection can appear in the registry.
func (a *Acceptor) acceptLoop() {
	for {
		_ = a.tcpLn.SetDeadline(time.Now().Add(acceptInterval))
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-a.done:
				a.log.Info().Msg("Listener is closing.")
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				a.log.Info().Msg("Listener closed.")
				return
			}
			a.log.Warn().Err(err).Msg("Failed to accept connection")
			continue
		}
		a.register(conn)
	}
}

func (a *Acceptor) register(nc net.Conn) {
	c := newConn(nc, a.registry, a.events, a.cfg.BufferSize)
	if err := a.registry.Insert(c.RemoteAddr(), c); err != nil {
		// A live entry with the same ip:port means a stale registration was
		// never cleaned up. Refuse the newcomer rather than overwrite.
		a.log.Error().Err(err).Str("remote_addr", c.RemoteAddr()).Msg("Refusing connection: address already registered.")
		_ = nc.Close()
		return
	}

	a.log.Info().Str("remote_addr", c.RemoteAddr()).Str("conn_id", c.ID()[:8]).Msg("Client connected.")
	if a.events != nil {
		a.events.ConnEvent(c.ID(), c.RemoteAddr(), EventConnected, "")
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		c.readLoop()
	}()
}

// Close stops accepting and closes the listening socket. Already-accepted
// connections are left alone; closing those exactly once is the Server's job.
func (a *Acceptor) Close() {
	if a.ln != nil {
		_ = a.ln.Close()
	}
}
