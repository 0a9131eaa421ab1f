// Package client implements the connector/receiver component: it initiates
// a connection to a remote server over one of four socket flavors,
// performs the reciprocal handshake, and surfaces received frames
// (potentially reassembled from HTTP chunks) to a consumer callback.
package client

import (
	"log/slog"
	"sync"

	"github.com/mmstreamer/engine/internal/link"
	"github.com/mmstreamer/engine/internal/logger"
	"github.com/mmstreamer/engine/internal/task"
)

// Config parametrizes one client instance. Name must be unique across the
// process-wide registry.
type Config struct {
	Name       string
	Kind       link.Kind
	Mode       link.Mode
	Recipient  link.Recipient
	SocketName string

	Path          string
	AppName       string
	AppVersion    string
	MaxBufferSize uint32

	// OnFrame is invoked with a delivered frame's copy; required.
	OnFrame func(buf []byte)

	// OnLinkBroken is invoked on handshake-parse failure and on zero-byte
	// stream reads; nil is a valid no-op subscriber.
	OnLinkBroken func(err error)
}

// Instance is a running, registered client. Construct via Start.
type Instance struct {
	cfg Config
	log *slog.Logger

	clientLink *link.Link

	mu          sync.Mutex
	bufferIn    []byte
	ackReceived bool
	maxBufSize  uint32

	nbBodyRead  int
	httpContent link.ParsedHttpContent
	httpScratch []byte

	watcher  *task.Task
	receiver *task.Task
	sem      *task.Semaphore
}

func (inst *Instance) componentLogger() *slog.Logger {
	return logger.WithComponent(logger.Logger(), inst.cfg.Name)
}
