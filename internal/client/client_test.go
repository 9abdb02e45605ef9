package client

import (
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// fakeServer accepts connections and acks every payload with a fixed reply,
// counting the payloads it sees.
type fakeServer struct {
	ln       net.Listener
	payloads atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fake server listen failed: %v", err)
	}
	fs := &fakeServer{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 1024)
				for {
					n, err := conn.Read(buf)
					if n > 0 {
						fs.payloads.Add(1)
						_, _ = conn.Write([]byte("ok"))
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return fs
}

func (fs *fakeServer) port() int {
	return fs.ln.Addr().(*net.TCPAddr).Port
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClient_ConnectSendDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	c := New("127.0.0.1", fs.port(), "DEV-TEST")

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !c.Connected() {
		t.Fatal("Connected() is false after Connect")
	}

	if err := c.SendText("hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if err := c.SendBinary([]byte{0x01, 0xff}); err != nil {
		t.Fatalf("SendBinary failed: %v", err)
	}
	waitFor(t, "payload delivery", func() bool { return fs.payloads.Load() == 2 })

	c.Disconnect()
	waitFor(t, "receive loop exit", func() bool { return !c.Connected() })

	if err := c.SendText("late"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after disconnect, got %v", err)
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	// Bind a port and close it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := New("127.0.0.1", port, "DEV-TEST")
	if err := c.Connect(); err == nil {
		t.Error("Expected Connect to a dead port to fail")
		c.Disconnect()
	}
}

func TestClient_ServerCloseEndsReceiveLoop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := New("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, "DEV-TEST")
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	serverSide := <-accepted
	serverSide.Close()

	waitFor(t, "receive loop exit", func() bool { return !c.Connected() })
}

func TestClient_Heartbeat(t *testing.T) {
	fs := newFakeServer(t)
	c := New("127.0.0.1", fs.port(), "DEV-TEST")

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	go c.RunHeartbeat(20 * time.Millisecond)
	waitFor(t, "heartbeats", func() bool { return fs.payloads.Load() >= 2 })
}

// A failure observed on a replaced stream must not tear down the live one.
func TestClient_StaleStreamFailureKeepsLiveConnection(t *testing.T) {
	fs := newFakeServer(t)
	c := New("127.0.0.1", fs.port(), "DEV-TEST")

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	c.mu.Lock()
	stale := c.conn
	c.mu.Unlock()

	c.Disconnect()
	waitFor(t, "disconnect", func() bool { return !c.Connected() })
	if err := c.Connect(); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	defer c.Disconnect()

	// The stale stream's cleanup runs after the reconnect, as it would when a
	// send snapshots the old conn and fails once the swap has happened.
	c.dropConn(stale)

	if !c.Connected() {
		t.Fatal("live connection was torn down by a stale stream's cleanup")
	}
	if err := c.SendText("still here"); err != nil {
		t.Errorf("send on the live stream failed: %v", err)
	}
}

func TestClient_Reconnect(t *testing.T) {
	fs := newFakeServer(t)
	c := New("127.0.0.1", fs.port(), "DEV-TEST")

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	c.Disconnect()
	waitFor(t, "disconnect", func() bool { return !c.Connected() })

	if err := c.Connect(); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	defer c.Disconnect()

	if err := c.SendText("back"); err != nil {
		t.Fatalf("SendText after reconnect failed: %v", err)
	}
	waitFor(t, "payload delivery", func() bool { return fs.payloads.Load() >= 1 })
}
