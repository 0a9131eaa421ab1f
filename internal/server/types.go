// Package server implements the listener/broadcaster component: it accepts
// heterogeneous client connections on one of four socket flavors, performs
// the protocol-specific handshake, tracks clients, and broadcasts
// producer-supplied frames to all authorized receivers with non-blocking
// backpressure.
package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mmstreamer/engine/internal/link"
	"github.com/mmstreamer/engine/internal/logger"
	"github.com/mmstreamer/engine/internal/task"
)

// ClientState is reported to Config.OnClientStateChanged on accept and on
// removal.
type ClientState int

const (
	Connected ClientState = iota
	Disconnected
)

func (s ClientState) String() string {
	if s == Connected {
		return "Connected"
	}
	return "Disconnected"
}

// Config parametrizes one server instance. Name must be unique across the
// process-wide registry.
type Config struct {
	Name       string
	Kind       link.Kind
	Mode       link.Mode
	Accept     link.AcceptMode
	Recipient  link.Recipient
	SocketName string

	// HTTP/Custom mode fields.
	Path          string
	Mime          string
	MaxBufferSize uint32
	AppName       string
	AppVersion    string

	MaxClients int

	// OnClientStateChanged is invoked on accept (Connected) and on removal
	// (Disconnected); nil is a valid no-op subscriber.
	OnClientStateChanged func(id uint32, state ClientState)
}

// client is one accepted receiver endpoint.
type client struct {
	id         uint32
	link       *link.Link
	authorized bool
	pData      any
}

// Instance is a running, registered server. Construct via Start.
type Instance struct {
	cfg Config
	log *slog.Logger

	serverLink *link.Link

	clientMu sync.Mutex
	clients  []*client

	mu              sync.Mutex
	bufferIn        []byte
	senderSuspended bool

	watcher *task.Task
	sender  *task.Task
	sem     *task.Semaphore

	startTime time.Time
}

func (inst *Instance) componentLogger() *slog.Logger {
	return logger.WithComponent(logger.Logger(), inst.cfg.Name)
}
