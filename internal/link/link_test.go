package link

import (
	"fmt"
	"testing"
	"time"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("mmstreamer-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestUnixStreamListenAcceptConnect(t *testing.T) {
	name := uniqueName(t)
	srv, err := Listen(UnixStream, Standard, Recipient{}, name, 4)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	cli, err := Dial(UnixStream, Standard, Recipient{SocketPath: name}, name)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	ready, err := IsReadyForReading(srv, 2000)
	if err != nil {
		t.Fatalf("IsReadyForReading: %v", err)
	}
	if !ready {
		t.Fatalf("expected listen socket ready for accept")
	}

	accepted, err := Accept(srv)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer accepted.Close()

	msg := []byte("HELLO\r\n")
	if status, n, err := WriteData(cli, msg); err != nil || status != Ok || n != len(msg) {
		t.Fatalf("WriteData: status=%v n=%d err=%v", status, n, err)
	}

	if ready, err := IsReadyForReading(accepted, 2000); err != nil || !ready {
		t.Fatalf("expected accepted link ready for reading: ready=%v err=%v", ready, err)
	}

	buf := make([]byte, len(msg))
	status, n, _, err := ReadData(accepted, buf)
	if err != nil || status != Ok || n != len(msg) {
		t.Fatalf("ReadData: status=%v n=%d err=%v", status, n, err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("body mismatch: got %q want %q", buf, msg)
	}
}

func TestUnixDatagramBroadcastLikeExchange(t *testing.T) {
	name := uniqueName(t)
	srv, err := Listen(UnixDgram, Custom, Recipient{}, name, 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	cli, err := Dial(UnixDgram, Custom, Recipient{SocketPath: name}, name)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	hello := PrepareCustomHeader()
	if status, n, err := WriteData(cli, hello); err != nil || status != Ok || n != len(hello) {
		t.Fatalf("client WriteData: status=%v n=%d err=%v", status, n, err)
	}

	scratch := make([]byte, 64)
	peer, n, err := PeekDatagramPeer(srv, scratch)
	if err != nil {
		t.Fatalf("PeekDatagramPeer: %v", err)
	}
	if n != len(hello) {
		t.Fatalf("expected to peek %d bytes, got %d", len(hello), n)
	}

	clientLink := &Link{Sock: srv.Sock, Domain: srv.Domain, Type: srv.Type, RemoteAddr: peer, UseRemoteAddr: true}
	buf := make([]byte, len(hello))
	status, got, _, err := ReadData(clientLink, buf)
	if err != nil || status != Ok || got != len(hello) {
		t.Fatalf("server ReadData: status=%v n=%d err=%v", status, got, err)
	}

	content := PrepareCustomContent(CustomContent{Mime: "application/octet-stream", MaxBufferSize: 1024})
	if status, n, err := WriteData(clientLink, content); err != nil || status != Ok || n != len(content) {
		t.Fatalf("server WriteData: status=%v n=%d err=%v", status, n, err)
	}

	recvBuf := make([]byte, len(content))
	status, n, _, err = ReadData(cli, recvBuf)
	if err != nil || status != Ok || n != len(content) {
		t.Fatalf("client ReadData: status=%v n=%d err=%v", status, n, err)
	}
	parsed, ok := ParseCustomContent(recvBuf)
	if !ok || parsed.MaxBufferSize != 1024 {
		t.Fatalf("unexpected parsed content: %+v ok=%v", parsed, ok)
	}

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if status, n, err := WriteData(clientLink, payload); err != nil || status != Ok || n != len(payload) {
		t.Fatalf("producer WriteData: status=%v n=%d err=%v", status, n, err)
	}
	frame := make([]byte, len(payload))
	status, n, _, err = ReadData(cli, frame)
	if err != nil || status != Ok || n != len(payload) {
		t.Fatalf("client frame ReadData: status=%v n=%d err=%v", status, n, err)
	}
	if string(frame) != string(payload) {
		t.Fatalf("frame mismatch: got %x want %x", frame, payload)
	}
}

func TestReadDataZeroLengthBufferIsNoOp(t *testing.T) {
	name := uniqueName(t)
	srv, err := Listen(UnixStream, Standard, Recipient{}, name, 4)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	status, n, _, err := ReadData(srv, nil)
	if err != nil || status != Ok || n != 0 {
		t.Fatalf("expected Ok/0 for empty buffer, got status=%v n=%d err=%v", status, n, err)
	}
}

func TestIsReadyForReadingTimesOutWhenIdle(t *testing.T) {
	name := uniqueName(t)
	srv, err := Listen(UnixStream, Standard, Recipient{}, name, 4)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	ready, err := IsReadyForReading(srv, 5)
	if err != nil {
		t.Fatalf("IsReadyForReading: %v", err)
	}
	if ready {
		t.Fatalf("expected not ready on an idle listen socket")
	}
}
