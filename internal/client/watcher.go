package client

import (
	"github.com/mmstreamer/engine/internal/link"
)

const watcherReadinessTimeoutMs = 2000

// watcherTick is one iteration of the watcher task's body.
func (inst *Instance) watcherTick() bool {
	if inst.watcher.Quit() {
		return false
	}
	ready, err := link.IsReadyForReading(inst.clientLink, watcherReadinessTimeoutMs)
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

	inst.mu.Lock()
	ackDone := inst.ackReceived
	inst.mu.Unlock()

	if !ackDone {
		return inst.consumeHandshakeAck()
	}
	return inst.deliverFrame()
}

// consumeHandshakeAck reads and parses the mode-specific handshake ack.
func (inst *Instance) consumeHandshakeAck() bool {
	switch inst.cfg.Mode {
	case link.Http:
		return inst.consumeHttpAck()
	case link.Custom:
		return inst.consumeCustomAck()
	default:
		inst.markAckReceived(inst.maxBufSize)
		return true
	}
}

func (inst *Instance) consumeHttpAck() bool {
	buf := make([]byte, 4096)
	status, n, _, err := link.ReadOnce(inst.clientLink, buf)
	if err != nil || status == link.IOErrorStatus {
		inst.reportBroken(err)
		return false
	}
	if status == link.Busy {
		return true
	}
	if n == 0 {
		inst.reportBroken(nil)
		return false
	}
	is200, _ := link.ParseHttp200Ok(buf[:n])
	if !is200 {
		inst.reportBroken(nil)
		return false
	}
	inst.markAckReceived(inst.maxBufSize)
	return true
}

func (inst *Instance) consumeCustomAck() bool {
	buf := make([]byte, 4096)
	status, n, _, err := link.ReadOnce(inst.clientLink, buf)
	if err != nil || status == link.IOErrorStatus {
		inst.reportBroken(err)
		return false
	}
	if status == link.Busy {
		return true
	}
	if n == 0 {
		inst.reportBroken(nil)
		return false
	}
	content, ok := link.ParseCustomContent(buf[:n])
	if !ok {
		inst.reportBroken(nil)
		return false
	}
	size := inst.maxBufSize
	if content.MaxBufferSize != size {
		size = content.MaxBufferSize
	}
	inst.markAckReceived(size)
	return true
}

func (inst *Instance) markAckReceived(maxBufSize uint32) {
	inst.mu.Lock()
	inst.maxBufSize = maxBufSize
	inst.bufferIn = make([]byte, maxBufSize)
	inst.ackReceived = true
	inst.mu.Unlock()
}

func (inst *Instance) reportBroken(err error) {
	if inst.cfg.OnLinkBroken != nil {
		inst.cfg.OnLinkBroken(err)
	}
	inst.clientLink.Close()
}

// deliverFrame reads one frame: for HTTP mode it reads the per-frame
// boundary header then the body, reassembling against Content-Length; for
// other modes it reads directly into bufferIn.
func (inst *Instance) deliverFrame() bool {
	if inst.cfg.Mode == link.Http {
		return inst.deliverHttpFrame()
	}
	return inst.deliverDirectFrame()
}

// deliverDirectFrame reads exactly len(bufferIn) (the negotiated
// MaxBufferSize) bytes per delivery: Standard and Custom modes carry no
// per-frame length prefix, so the producer is expected to send
// fixed-size frames matching the advertised maximum.
func (inst *Instance) deliverDirectFrame() bool {
	inst.mu.Lock()
	buf := inst.bufferIn[:cap(inst.bufferIn)]
	inst.mu.Unlock()

	status, n, _, err := link.ReadData(inst.clientLink, buf)
	if err != nil || status == link.IOErrorStatus {
		inst.reportBroken(err)
		return false
	}
	if status == link.Busy {
		return true
	}
	if n == 0 {
		inst.reportBroken(nil)
		return false
	}
	inst.mu.Lock()
	inst.bufferIn = buf[:n]
	inst.mu.Unlock()
	inst.sem.Post()
	return true
}

func (inst *Instance) deliverHttpFrame() bool {
	status, n, _, err := link.ReadOnce(inst.clientLink, inst.httpScratch)
	if err != nil || status == link.IOErrorStatus {
		inst.reportBroken(err)
		return false
	}
	if status == link.Busy {
		return true
	}
	if n == 0 {
		inst.reportBroken(nil)
		return false
	}

	parsed := link.ParseHttpContent(inst.httpScratch[:n])
	if parsed.Length == 0 {
		return true
	}

	bodyAvailable := n - parsed.BodyStart
	body := make([]byte, parsed.Length)
	copied := 0
	if bodyAvailable > 0 {
		copied = copy(body, inst.httpScratch[parsed.BodyStart:n])
	}

	remaining := parsed.Length - copied
	for remaining > 0 {
		chunk := make([]byte, remaining)
		status, got, _, err := link.ReadData(inst.clientLink, chunk)
		if err != nil || status == link.IOErrorStatus {
			inst.reportBroken(err)
			return false
		}
		copy(body[copied:], chunk[:got])
		copied += got
		remaining -= got
		if status == link.Busy {
			continue
		}
		if got == 0 {
			inst.reportBroken(nil)
			return false
		}
	}

	if copied != parsed.Length {
		inst.log.Debug("dropping frame: body length mismatch", "want", parsed.Length, "got", copied)
		return true
	}

	inst.mu.Lock()
	if uint32(len(body)) > inst.maxBufSize {
		inst.maxBufSize = uint32(len(body))
	}
	inst.bufferIn = body
	inst.mu.Unlock()
	inst.sem.Post()
	return true
}
