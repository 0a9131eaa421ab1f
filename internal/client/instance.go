package client

import (
	"time"

	enginerrors "github.com/mmstreamer/engine/internal/errors"
	"github.com/mmstreamer/engine/internal/link"
	"github.com/mmstreamer/engine/internal/task"
)

const handshakeWriteTimeout = 2 * time.Second

// writeHandshakeRequest writes buffer to cl, retrying while the
// non-blocking socket reports Busy. Gives up after handshakeWriteTimeout.
func writeHandshakeRequest(cl *link.Link, buffer []byte) error {
	deadline := time.Now().Add(handshakeWriteTimeout)
	for {
		status, _, err := link.WriteData(cl, buffer)
		if err != nil {
			return err
		}
		if status == link.Ok {
			return nil
		}
		if time.Now().After(deadline) {
			return enginerrors.NewTimeoutError("client.writeHandshakeRequest", handshakeWriteTimeout, nil)
		}
		link.IsReadyForWriting(cl, 50)
	}
}

// Start resolves the recipient, dials (connect for stream flavors, local
// abstract bind for Unix datagram flavors), creates and starts
// the watcher and receiver tasks, and registers the instance.
func Start(cfg Config) (*Instance, error) {
	if cfg.Name == "" {
		return nil, enginerrors.NewParamsError("client.Start: empty name", nil)
	}
	if cfg.OnFrame == nil {
		return nil, enginerrors.NewParamsError("client.Start: OnFrame is required", nil)
	}
	if cfg.Mode == link.Http && cfg.Kind != link.InetStream {
		return nil, enginerrors.NewParamsError("client.Start: Http mode requires InetStream", nil)
	}
	if _, exists := registryGet(cfg.Name); exists {
		return nil, enginerrors.NewStateError("client.Start: name already registered: "+cfg.Name, nil)
	}

	cl, err := link.Dial(cfg.Kind, cfg.Mode, cfg.Recipient, cfg.SocketName)
	if err != nil {
		return nil, enginerrors.NewIoError("client.Start: dial", err)
	}

	inst := &Instance{
		cfg:         cfg,
		clientLink:  cl,
		maxBufSize:  cfg.MaxBufferSize,
		sem:         task.NewSemaphore(),
		httpScratch: make([]byte, 4096),
	}
	inst.log = inst.componentLogger()

	switch cfg.Mode {
	case link.Http:
		host, port := cfg.Recipient.Host, cfg.Recipient.Service
		req := link.PrepareHttpGet(link.HttpGet{
			Path:    cfg.Path,
			Host:    host,
			Port:    port,
			Name:    cfg.AppName,
			Version: cfg.AppVersion,
		})
		if err := writeHandshakeRequest(cl, req); err != nil {
			cl.Close()
			return nil, enginerrors.NewIoError("client.Start: http handshake write", err)
		}
	case link.Custom:
		if err := writeHandshakeRequest(cl, link.PrepareCustomHeader()); err != nil {
			cl.Close()
			return nil, enginerrors.NewIoError("client.Start: custom handshake write", err)
		}
	}

	inst.watcher = task.New(cfg.Name+"-watcher", inst.watcherTick)
	inst.receiver = task.New(cfg.Name+"-receiver", inst.receiverTick)

	if err := inst.watcher.Start(); err != nil {
		cl.Close()
		return nil, enginerrors.NewTaskError("client.Start: watcher", err)
	}
	if err := inst.receiver.Start(); err != nil {
		inst.watcher.Stop()
		cl.Close()
		return nil, enginerrors.NewTaskError("client.Start: receiver", err)
	}

	registryPut(cfg.Name, inst)
	inst.log.Info("client started", "kind", cfg.Kind.String(), "mode", cfg.Mode.String())
	return inst, nil
}

// Stop mirrors server.Instance.Stop: set quit on both tasks, post the
// semaphore, join, close the socket.
func (inst *Instance) Stop() error {
	if inst == nil {
		return nil
	}
	registryDelete(inst.cfg.Name)

	inst.watcher.Stop()
	inst.receiver.Stop()
	inst.sem.Post()
	inst.watcher.Join()
	inst.receiver.Join()

	inst.clientLink.Close()
	inst.log.Info("client stopped")
	return nil
}

// SendData writes buffer to the server synchronously; there is no queue on
// the client side.
func (inst *Instance) SendData(buffer []byte) (link.Status, error) {
	status, _, err := link.WriteData(inst.clientLink, buffer)
	return status, err
}

// Name returns the instance's registry name.
func (inst *Instance) Name() string { return inst.cfg.Name }
