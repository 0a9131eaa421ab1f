package server

import (
	"github.com/mmstreamer/engine/internal/bufpool"
	"github.com/mmstreamer/engine/internal/link"
)

// senderTick is one iteration of the sender task's body: wait on the
// instance semaphore, then broadcast the current frame to every authorized,
// currently-writable client, dropping any that are not.
func (inst *Instance) senderTick() bool {
	inst.sem.Wait()
	if inst.sender.Quit() {
		return false
	}

	inst.mu.Lock()
	if inst.senderSuspended {
		inst.mu.Unlock()
		return true
	}
	// Own copy, taken under the lock: the producer may reuse its buffer the
	// moment SendData returns, so nothing past this point may alias it.
	bufferOut := bufpool.Get(len(inst.bufferIn))
	copy(bufferOut, inst.bufferIn)
	inst.bufferIn = nil
	inst.mu.Unlock()
	defer bufpool.Put(bufferOut)

	if len(bufferOut) == 0 {
		return true
	}

	inst.clientMu.Lock()
	snapshot := make([]*client, len(inst.clients))
	copy(snapshot, inst.clients)
	inst.clientMu.Unlock()

	if len(snapshot) == 0 {
		return true
	}

	var failed []*client
	for _, c := range snapshot {
		if !c.authorized {
			continue
		}
		ready, err := link.IsReadyForWriting(c.link, 0)
		if err != nil || !ready {
			continue
		}
		if inst.cfg.Mode == link.Http {
			header := link.PrepareHttpContent(link.HttpContent{
				Boundary: link.BoundaryFor(inst.cfg.AppName, inst.cfg.AppVersion),
				Mime:     inst.cfg.Mime,
				Length:   len(bufferOut),
			})
			if status, _, err := link.WriteData(c.link, header); err != nil || status == link.IOErrorStatus {
				failed = append(failed, c)
				continue
			}
		}
		if status, _, err := link.WriteData(c.link, bufferOut); err != nil || status == link.IOErrorStatus {
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		inst.DisconnectClient(c.id)
	}
	return true
}
