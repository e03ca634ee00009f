package provider

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedBackend returns the queued handshake results in order, repeating the last one.
type scriptedBackend struct {
	mu        sync.Mutex
	results   []error
	calls     int
	chainId   *big.Int
	signed    []apitypes.TypedData
	signature []byte
	signErr   error
}

func (s *scriptedBackend) Handshake(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	if idx >= 0 && s.results[idx] != nil {
		return nil, s.results[idx]
	}
	return s.chainId, nil
}

func (s *scriptedBackend) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signed = append(s.signed, typedData)
	return s.signature, s.signErr
}

func newTestProvider(t *testing.T, backend Backend, health time.Duration) *Provider {
	t.Helper()
	p, err := NewProvider(&Config{
		Backend:        backend,
		RetryInterval:  5 * time.Millisecond,
		HealthInterval: health,
		Logger:         zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func waitForEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for provider event")
		return Event{}
	}
}

func Test_NewProviderValidation(t *testing.T) {
	_, err := NewProvider(nil)
	require.Error(t, err)

	_, err = NewProvider(&Config{Logger: zaptest.NewLogger(t)})
	require.ErrorContains(t, err, "backend is required")

	_, err = NewProvider(&Config{Backend: &scriptedBackend{}})
	require.ErrorContains(t, err, "logger is required")
}

func Test_ProviderConnectEmitsConnect(t *testing.T) {
	backend := &scriptedBackend{results: []error{nil}, chainId: big.NewInt(42161), signature: []byte{0x01}}
	p := newTestProvider(t, backend, 0)

	events := make(chan Event, 4)
	p.On(EventConnect, func(ev Event) { events <- ev })

	_, err := p.SignTypedData(context.Background(), apitypes.TypedData{})
	require.ErrorIs(t, err, ErrNotConnected)

	p.Connect()
	ev := waitForEvent(t, events)
	assert.Equal(t, EventConnect, ev.Type)
	assert.Equal(t, int64(42161), ev.ChainId.Int64())

	sig, err := p.SignTypedData(context.Background(), apitypes.TypedData{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, sig)
}

func Test_ProviderRetriesHandshake(t *testing.T) {
	backend := &scriptedBackend{
		results: []error{errors.New("connection refused"), errors.New("connection refused"), nil},
		chainId: big.NewInt(1),
	}
	p := newTestProvider(t, backend, 0)

	events := make(chan Event, 4)
	p.On(EventConnect, func(ev Event) { events <- ev })
	p.Connect()
	p.Connect()

	waitForEvent(t, events)
	backend.mu.Lock()
	assert.Equal(t, 3, backend.calls)
	backend.mu.Unlock()
}

func Test_ProviderRemoveListenerOnlyRemovesOne(t *testing.T) {
	backend := &scriptedBackend{results: []error{nil}, chainId: big.NewInt(1)}
	p := newTestProvider(t, backend, 0)

	var mu sync.Mutex
	var calledRemoved bool
	kept := make(chan Event, 1)

	removedId := p.On(EventConnect, func(ev Event) {
		mu.Lock()
		calledRemoved = true
		mu.Unlock()
	})
	p.On(EventConnect, func(ev Event) { kept <- ev })
	p.RemoveListener(removedId)
	p.RemoveListener(ListenerId(9999))

	assert.Equal(t, 1, p.ListenerCount(EventConnect))

	p.Connect()
	waitForEvent(t, kept)

	mu.Lock()
	assert.False(t, calledRemoved)
	mu.Unlock()
}

func Test_ProviderListenerCanRemoveItself(t *testing.T) {
	backend := &scriptedBackend{results: []error{nil}, chainId: big.NewInt(1)}
	p := newTestProvider(t, backend, 0)

	done := make(chan Event, 1)
	var id ListenerId
	id = p.On(EventConnect, func(ev Event) {
		p.RemoveListener(id)
		done <- ev
	})
	p.Connect()
	waitForEvent(t, done)
	assert.Equal(t, 0, p.ListenerCount(EventConnect))
}

func Test_ProviderReconnectEmitsAgain(t *testing.T) {
	backend := &scriptedBackend{
		results: []error{nil, errors.New("provider unreachable"), nil},
		chainId: big.NewInt(42161),
	}
	p := newTestProvider(t, backend, 5*time.Millisecond)

	events := make(chan Event, 8)
	p.On(EventConnect, func(ev Event) { events <- ev })
	p.On(EventDisconnect, func(ev Event) { events <- ev })
	p.Connect()

	assert.Equal(t, EventConnect, waitForEvent(t, events).Type)
	disconnect := waitForEvent(t, events)
	assert.Equal(t, EventDisconnect, disconnect.Type)
	assert.ErrorContains(t, disconnect.Err, "provider unreachable")
	assert.Equal(t, EventConnect, waitForEvent(t, events).Type)
}

func Test_ProviderSignDelegatesToBackend(t *testing.T) {
	backend := &scriptedBackend{results: []error{nil}, chainId: big.NewInt(1), signature: []byte{0x01, 0x02}}
	p := newTestProvider(t, backend, 0)

	events := make(chan Event, 1)
	p.On(EventConnect, func(ev Event) { events <- ev })
	p.Connect()
	waitForEvent(t, events)

	td := apitypes.TypedData{PrimaryType: "Mail"}
	sig, err := p.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, sig)
	require.Len(t, backend.signed, 1)
	assert.Equal(t, "Mail", backend.signed[0].PrimaryType)

	backend.signErr = errors.New("rejected by policy")
	_, err = p.SignTypedData(context.Background(), td)
	require.EqualError(t, err, "rejected by policy")
}

func Test_ProviderClose(t *testing.T) {
	backend := &scriptedBackend{results: []error{errors.New("down")}, chainId: big.NewInt(1)}
	p := newTestProvider(t, backend, 0)
	p.Connect()

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.SignTypedData(context.Background(), apitypes.TypedData{})
	require.ErrorIs(t, err, ErrClosed)

	// Connect after close does nothing.
	connects := 0
	p.On(EventConnect, func(Event) { connects++ })
	p.Connect()
	_, err = p.SignTypedData(context.Background(), apitypes.TypedData{})
	require.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, connects)
}
