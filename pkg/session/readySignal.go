package session

import (
	"sync"

	"github.com/Layr-Labs/vault-signer-go/pkg/provider"
)

// readySignal resolves once, on the first connect event of a transport, and removes its own
// listener when it does. Later connect events are ignored.
type readySignal struct {
	transport Transport
	ch        chan provider.Event
	once      sync.Once

	mu         sync.Mutex
	id         provider.ListenerId
	registered bool
}

func armReadySignal(transport Transport) *readySignal {
	rs := &readySignal{
		transport: transport,
		ch:        make(chan provider.Event, 1),
	}
	rs.mu.Lock()
	rs.id = transport.On(provider.EventConnect, rs.fire)
	rs.registered = true
	rs.mu.Unlock()
	return rs
}

func (rs *readySignal) C() <-chan provider.Event {
	return rs.ch
}

func (rs *readySignal) fire(event provider.Event) {
	rs.once.Do(func() {
		rs.ch <- event
	})
	rs.deregister()
}

// Cancel stops the signal from resolving and removes its listener.
func (rs *readySignal) Cancel() {
	rs.once.Do(func() {})
	rs.deregister()
}

func (rs *readySignal) deregister() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.registered {
		return
	}
	rs.transport.RemoveListener(rs.id)
	rs.registered = false
}
