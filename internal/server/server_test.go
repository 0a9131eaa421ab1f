package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmstreamer/engine/internal/link"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("srv-test-%s-%d", t.Name(), time.Now().UnixNano())
}

// freePort reserves an ephemeral loopback TCP port and releases it for the
// server under test to bind; Http mode requires an InetStream link.
func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not satisfied before deadline")
}

// TestHttpHandshakeHappyPath is scenario S1 from spec.md §8.
func TestHttpHandshakeHappyPath(t *testing.T) {
	var mu sync.Mutex
	var states []ClientState
	cfg := Config{
		Name:          uniqueName(t),
		Kind:          link.InetStream,
		Mode:          link.Http,
		Accept:        link.Automatic,
		Recipient:     link.Recipient{Host: "127.0.0.1", Service: freePort(t)},
		Path:          "stream",
		Mime:          "image/jpeg",
		MaxBufferSize: 4096,
		AppName:       "x",
		AppVersion:    "1",
		MaxClients:    4,
		OnClientStateChanged: func(id uint32, st ClientState) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		},
	}
	inst, err := Start(cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	cli, err := link.Dial(link.InetStream, link.Http, cfg.Recipient, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	req := link.PrepareHttpGet(link.HttpGet{Path: "stream", Host: "127.0.0.1", Port: "8080", Name: "x", Version: "1"})
	if status, _, err := link.WriteData(cli, req); err != nil || status != link.Ok {
		t.Fatalf("client write: status=%v err=%v", status, err)
	}

	buf := make([]byte, 4096)
	waitFor(t, func() bool {
		ready, _ := link.IsReadyForReading(cli, 0)
		return ready
	})
	// The server keeps the link open after the 200 reply, so read it with a
	// single call: ReadData would report Busy while trying to fill buf.
	status, n, _, err := link.ReadOnce(cli, buf)
	if err != nil || status != link.Ok {
		t.Fatalf("client read: status=%v err=%v", status, err)
	}
	resp := string(buf[:n])
	if !strings.HasPrefix(resp, "HTTP/1.0 200 OK\r\n") {
		t.Fatalf("expected 200 OK preamble, got %q", resp)
	}
	if !strings.Contains(resp, "boundary=.-_.") {
		t.Fatalf("expected boundary substring, got %q", resp)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 1 && states[0] == Connected
	})
}

// TestHttp404 is scenario S2 from spec.md §8.
func TestHttp404(t *testing.T) {
	var connectedCount int
	var mu sync.Mutex
	cfg := Config{
		Name:       uniqueName(t),
		Kind:       link.InetStream,
		Mode:       link.Http,
		Accept:     link.Automatic,
		Recipient:  link.Recipient{Host: "127.0.0.1", Service: freePort(t)},
		Path:       "stream",
		Mime:       "image/jpeg",
		AppName:    "x",
		AppVersion: "1",
		MaxClients: 4,
		OnClientStateChanged: func(id uint32, st ClientState) {
			mu.Lock()
			if st == Connected {
				connectedCount++
			}
			mu.Unlock()
		},
	}
	inst, err := Start(cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	cli, err := link.Dial(link.InetStream, link.Http, cfg.Recipient, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	req := link.PrepareHttpGet(link.HttpGet{Path: "other", Host: "127.0.0.1", Port: "8080", Name: "x", Version: "1"})
	if status, _, err := link.WriteData(cli, req); err != nil || status != link.Ok {
		t.Fatalf("client write: status=%v err=%v", status, err)
	}

	buf := make([]byte, 4096)
	waitFor(t, func() bool {
		ready, _ := link.IsReadyForReading(cli, 0)
		return ready
	})
	status, n, _, err := link.ReadData(cli, buf)
	if err != nil || status != link.Ok {
		t.Fatalf("client read: status=%v err=%v", status, err)
	}
	resp := string(buf[:n])
	if !strings.HasPrefix(resp, "HTTP/1.0 404 Not Found\r\n") {
		t.Fatalf("expected 404 preamble, got %q", resp)
	}
	if !strings.Contains(resp, "/other") || !strings.Contains(resp, "/stream") {
		t.Fatalf("expected both paths in 404 body: %q", resp)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if connectedCount != 0 {
		t.Fatalf("expected no Connected callback on handshake failure, got %d", connectedCount)
	}
}

// TestSenderSuspendResumeDropsMiddleFrame is scenario S4 from spec.md §8.
func TestSenderSuspendResumeDropsMiddleFrame(t *testing.T) {
	cfg := Config{
		Name:       uniqueName(t),
		Kind:       link.UnixStream,
		Mode:       link.Standard,
		Accept:     link.Automatic,
		SocketName: uniqueName(t),
		MaxClients: 4,
	}
	inst, err := Start(cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	cli, err := link.Dial(link.UnixStream, link.Standard, link.Recipient{SocketPath: cfg.SocketName}, cfg.SocketName)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	waitFor(t, func() bool {
		inst.clientMu.Lock()
		defer inst.clientMu.Unlock()
		return len(inst.clients) == 1
	})

	inst.SendData([]byte("A"))
	waitFor(t, func() bool {
		ready, _ := link.IsReadyForReading(cli, 0)
		return ready
	})
	buf := make([]byte, 8)
	status, n, _, err := link.ReadData(cli, buf[:1])
	if err != nil || status != link.Ok || string(buf[:n]) != "A" {
		t.Fatalf("expected to read frame A, got %q status=%v err=%v", buf[:n], status, err)
	}

	inst.SuspendSender()
	inst.SendData([]byte("B"))
	inst.ResumeSender()
	inst.SendData([]byte("C"))

	waitFor(t, func() bool {
		ready, _ := link.IsReadyForReading(cli, 0)
		return ready
	})
	status, n, _, err = link.ReadData(cli, buf[:1])
	if err != nil || status != link.Ok {
		t.Fatalf("read after resume: status=%v err=%v", status, err)
	}
	if string(buf[:n]) != "C" {
		t.Fatalf("expected frame C after suspend/resume, got %q (frame B must be dropped)", buf[:n])
	}
}

func TestZeroLengthSendIsIgnored(t *testing.T) {
	cfg := Config{
		Name:       uniqueName(t),
		Kind:       link.UnixStream,
		Mode:       link.Standard,
		Accept:     link.Automatic,
		SocketName: uniqueName(t),
		MaxClients: 4,
	}
	inst, err := Start(cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	inst.SendData(nil)
	if inst.sem.Count() != 0 {
		t.Fatalf("expected zero-length SendData not to post the semaphore")
	}
}

func TestStopClosesAllClientSockets(t *testing.T) {
	cfg := Config{
		Name:       uniqueName(t),
		Kind:       link.UnixStream,
		Mode:       link.Standard,
		Accept:     link.Automatic,
		SocketName: uniqueName(t),
		MaxClients: 4,
	}
	inst, err := Start(cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cli, err := link.Dial(link.UnixStream, link.Standard, link.Recipient{SocketPath: cfg.SocketName}, cfg.SocketName)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	waitFor(t, func() bool {
		inst.clientMu.Lock()
		defer inst.clientMu.Unlock()
		return len(inst.clients) == 1
	})

	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, ok := Lookup(cfg.Name); ok {
		t.Fatalf("expected instance removed from registry after Stop")
	}

	waitFor(t, func() bool {
		ready, _ := link.IsReadyForReading(cli, 0)
		return ready
	})
	buf := make([]byte, 1)
	if status, n, _, err := link.ReadData(cli, buf); err != nil || status != link.Ok || n != 0 {
		t.Fatalf("expected orderly shutdown of the client's link after Stop: status=%v n=%d err=%v", status, n, err)
	}
}
