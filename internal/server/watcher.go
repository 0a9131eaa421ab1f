package server

import (
	"time"

	"github.com/mmstreamer/engine/internal/link"
)

const watcherReadinessTimeoutMs = 2000

// watcherTick is one iteration of the watcher task's body: a 2-second
// readiness window on the listen socket, followed by accept/handshake.
func (inst *Instance) watcherTick() bool {
	if inst.watcher.Quit() {
		return false
	}
	ready, err := link.IsReadyForReading(inst.serverLink, watcherReadinessTimeoutMs)
	if err != nil {
		inst.log.Error("watcher readiness probe failed", "error", err)
		return true
	}
	if !ready {
		return true
	}
	if inst.watcher.Quit() {
		return false
	}

	switch inst.cfg.Kind {
	case link.InetStream, link.UnixStream:
		inst.acceptStream()
	default:
		inst.acceptDatagram()
	}
	return true
}

func (inst *Instance) acceptStream() {
	peer, err := link.Accept(inst.serverLink)
	if err != nil {
		inst.log.Debug("accept failed", "error", err)
		return
	}
	// The handshake runs on the blocking socket Accept returns; switch to
	// non-blocking only once it succeeds, per spec.md §4.B.
	if !inst.handshake(peer) {
		peer.Close()
		return
	}
	if err := link.SetBlocking(peer, false); err != nil {
		inst.log.Debug("post-handshake non-blocking toggle failed", "error", err)
		peer.Close()
		return
	}
	inst.registerClient(peer)
}

func (inst *Instance) acceptDatagram() {
	scratch := make([]byte, 4096)
	peerAddr, _, err := link.PeekDatagramPeer(inst.serverLink, scratch)
	if err != nil {
		inst.log.Debug("datagram peek failed", "error", err)
		return
	}
	peer := &link.Link{
		Sock:          inst.serverLink.Sock,
		Domain:        inst.serverLink.Domain,
		Type:          inst.serverLink.Type,
		RemoteAddr:    peerAddr,
		UseRemoteAddr: true,
	}
	if !inst.handshake(peer) {
		return
	}
	inst.registerClient(peer)
}

// handshake performs the mode-specific exchange. Returns false on any
// failure (the caller closes stream-flavor sockets; datagram flavors share
// the server socket and are simply not registered).
func (inst *Instance) handshake(peer *link.Link) bool {
	switch inst.cfg.Mode {
	case link.Standard:
		return true
	case link.Custom:
		return inst.handshakeCustom(peer)
	case link.Http:
		return inst.handshakeHttp(peer)
	default:
		return false
	}
}

func (inst *Instance) handshakeCustom(peer *link.Link) bool {
	header := link.PrepareCustomHeader()
	buf := make([]byte, len(header))
	status, n, _, err := link.ReadOnce(peer, buf)
	if err != nil || status != link.Ok || !link.ParseCustomHeader(buf[:n]) {
		inst.log.Debug("custom handshake: bad header", "error", err)
		return false
	}
	content := link.PrepareCustomContent(link.CustomContent{
		Mime:          inst.cfg.Mime,
		MaxBufferSize: inst.cfg.MaxBufferSize,
	})
	if status, _, err := link.WriteData(peer, content); err != nil || status != link.Ok {
		inst.log.Debug("custom handshake: write failed", "error", err)
		return false
	}
	return true
}

func (inst *Instance) handshakeHttp(peer *link.Link) bool {
	buf := make([]byte, 4096)
	status, n, _, err := link.ReadOnce(peer, buf)
	if err != nil || status != link.Ok {
		inst.log.Debug("http handshake: read failed", "error", err)
		return false
	}
	parsed := link.ParseHttpGet(buf[:n])
	if !parsed.IsHttpGet {
		resp := link.PrepareHttp400BadRequest(parsed.Host, parsed.Port, parsed.Path)
		link.WriteData(peer, resp)
		return false
	}
	if parsed.Path != inst.cfg.Path {
		resp := link.PrepareHttp404NotFound(parsed.Host, parsed.Port, inst.cfg.Path, parsed.Path)
		link.WriteData(peer, resp)
		return false
	}
	resp := link.PrepareHttp200Ok(inst.cfg.AppName, inst.cfg.AppVersion)
	if status, _, err := link.WriteData(peer, resp); err != nil || status != link.Ok {
		inst.log.Debug("http handshake: 200 write failed", "error", err)
		return false
	}
	return true
}

// registerClient allocates the client id, applies the configured accept
// mode, inserts into the client list, and fires OnClientStateChanged.
// The id is the current list length plus the wall-clock seconds, so it is
// not unique: a client that connects one second after another one left can
// receive the same id.
func (inst *Instance) registerClient(peer *link.Link) {
	inst.clientMu.Lock()
	id := uint32(len(inst.clients)) + uint32(time.Now().Unix())
	c := &client{
		id:         id,
		link:       peer,
		authorized: inst.cfg.Accept == link.Automatic,
	}
	inst.clients = append(inst.clients, c)
	inst.clientMu.Unlock()

	if inst.cfg.OnClientStateChanged != nil {
		inst.cfg.OnClientStateChanged(id, Connected)
	}
	inst.log.Debug("client accepted", "id", id, "authorized", c.authorized)
}
