package server

import (
	"time"

	enginerrors "github.com/mmstreamer/engine/internal/errors"
	"github.com/mmstreamer/engine/internal/link"
	"github.com/mmstreamer/engine/internal/task"
)

// Start constructs the instance, creates the listen socket per the flavor
// rules, sets it non-blocking, enables address reuse for INET kinds,
// listens for stream kinds, starts the watcher and sender tasks, and
// registers the instance in the process-wide registry keyed by cfg.Name.
func Start(cfg Config) (*Instance, error) {
	if cfg.Name == "" {
		return nil, enginerrors.NewParamsError("server.Start: empty name", nil)
	}
	if cfg.Mode == link.Http && cfg.Kind != link.InetStream {
		return nil, enginerrors.NewParamsError("server.Start: Http mode requires InetStream", nil)
	}

	if _, exists := registryGet(cfg.Name); exists {
		return nil, enginerrors.NewStateError("server.Start: name already registered: "+cfg.Name, nil)
	}

	serverLink, err := link.Listen(cfg.Kind, cfg.Mode, cfg.Recipient, cfg.SocketName, cfg.MaxClients)
	if err != nil {
		return nil, enginerrors.NewIoError("server.Start: listen", err)
	}

	inst := &Instance{
		cfg:        cfg,
		serverLink: serverLink,
		sem:        task.NewSemaphore(),
		startTime:  time.Now(),
	}
	inst.log = inst.componentLogger()

	inst.watcher = task.New(cfg.Name+"-watcher", inst.watcherTick)
	inst.sender = task.New(cfg.Name+"-sender", inst.senderTick)

	if err := inst.watcher.Start(); err != nil {
		serverLink.Close()
		return nil, enginerrors.NewTaskError("server.Start: watcher", err)
	}
	if err := inst.sender.Start(); err != nil {
		inst.watcher.Stop()
		serverLink.Close()
		return nil, enginerrors.NewTaskError("server.Start: sender", err)
	}

	registryPut(cfg.Name, inst)
	inst.log.Info("server started", "kind", cfg.Kind.String(), "mode", cfg.Mode.String())
	return inst, nil
}

// Stop removes the registry entry and runs the release cascade: set quit,
// post the sender semaphore, join both tasks, empty the client list
// (closing each socket), close the listen socket.
func (inst *Instance) Stop() error {
	if inst == nil {
		return nil
	}
	registryDelete(inst.cfg.Name)

	inst.watcher.Stop()
	inst.sender.Stop()
	inst.sem.Post()
	inst.watcher.Join()
	inst.sender.Join()

	inst.clientMu.Lock()
	for _, c := range inst.clients {
		inst.closeClientLocked(c)
	}
	inst.clients = nil
	inst.clientMu.Unlock()

	inst.serverLink.Close()
	inst.log.Info("server stopped")
	return nil
}

// closeClientLocked closes a client's link and fires OnClientStateChanged.
// Caller must hold clientMu. For datagram flavors the client shares the
// server's socket, so only stream-flavor client links are actually closed.
func (inst *Instance) closeClientLocked(c *client) {
	if inst.cfg.Kind == link.InetStream || inst.cfg.Kind == link.UnixStream {
		c.link.Close()
	}
	if inst.cfg.OnClientStateChanged != nil {
		inst.cfg.OnClientStateChanged(c.id, Disconnected)
	}
}

// AddReceiver flips the authorization flag on for the given client id.
func (inst *Instance) AddReceiver(id uint32) error {
	return inst.setAuthorized(id, true)
}

// RemoveReceiver flips the authorization flag off for the given client id.
func (inst *Instance) RemoveReceiver(id uint32) error {
	return inst.setAuthorized(id, false)
}

func (inst *Instance) setAuthorized(id uint32, authorized bool) error {
	inst.clientMu.Lock()
	defer inst.clientMu.Unlock()
	for _, c := range inst.clients {
		if c.id == id {
			c.authorized = authorized
			return nil
		}
	}
	return enginerrors.NewListError("server.setAuthorized: unknown client id", nil)
}

// SuspendSender sets senderSuspended and drains the semaphore to zero and
// clears bufferIn, guaranteeing the sender observes the suspended state
// before any already-posted frame is sent.
func (inst *Instance) SuspendSender() {
	inst.mu.Lock()
	inst.senderSuspended = true
	inst.bufferIn = nil
	inst.mu.Unlock()
	inst.sem.Drain()
}

// ResumeSender clears senderSuspended.
func (inst *Instance) ResumeSender() {
	inst.mu.Lock()
	inst.senderSuspended = false
	inst.mu.Unlock()
}

// DisconnectClient removes the client from the list, closing its link and
// releasing it.
func (inst *Instance) DisconnectClient(id uint32) error {
	inst.clientMu.Lock()
	defer inst.clientMu.Unlock()
	for i, c := range inst.clients {
		if c.id == id {
			inst.closeClientLocked(c)
			inst.clients = append(inst.clients[:i], inst.clients[i+1:]...)
			return nil
		}
	}
	return enginerrors.NewListError("server.DisconnectClient: unknown client id", nil)
}

// SendData stores the caller's buffer in bufferIn and posts the semaphore.
// The caller retains ownership of buffer's memory until this returns: the
// sender task copies it out under the instance mutex before touching any
// socket. A zero-length buffer is treated as "nothing to send" and neither
// stored nor posted, matching the boundary case in spec.md §8.
func (inst *Instance) SendData(buffer []byte) {
	if len(buffer) == 0 {
		return
	}
	inst.mu.Lock()
	if inst.senderSuspended {
		inst.mu.Unlock()
		return
	}
	inst.bufferIn = buffer
	inst.mu.Unlock()
	inst.sem.Post()
}

// Name returns the instance's registry name.
func (inst *Instance) Name() string { return inst.cfg.Name }
