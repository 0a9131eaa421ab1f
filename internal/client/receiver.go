package client

// receiverTick is one iteration of the receiver task's body: wait on the
// semaphore, copy bufferIn out under the mutex, invoke the consumer
// callback with the copy.
func (inst *Instance) receiverTick() bool {
	inst.sem.Wait()
	if inst.receiver.Quit() {
		return false
	}

	inst.mu.Lock()
	bufferOut := append([]byte(nil), inst.bufferIn...)
	inst.mu.Unlock()

	if len(bufferOut) == 0 {
		return true
	}
	inst.cfg.OnFrame(bufferOut)
	return true
}
