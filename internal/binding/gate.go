package binding

// Wait blocks until client id's run loop ends: after Destroy, or after a
// network failure the engine does not recover from. It returns immediately
// for unknown IDs and clients that were never set up.
//
// Concurrent waiters on the same client are serialized; waiters on different
// clients do not block each other.
func (b *Binding) Wait(id ClientID) {
	e, ok := b.clients.lookup(id)
	if !ok {
		return
	}

	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return
	}

	e.waitMu.Lock()
	defer e.waitMu.Unlock()

	client.Wait()
}
