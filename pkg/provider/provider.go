package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrNotConnected = errors.New("provider is not connected")
	ErrClosed       = errors.New("provider is closed")
)

// Backend is a remote signing service reachable over the network.
type Backend interface {
	// Handshake establishes (or re-checks) the session with the remote service and
	// reports the chain id it is serving.
	Handshake(ctx context.Context) (*big.Int, error)

	// SignTypedData asks the remote service to sign EIP-712 typed data with the vault key.
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}

type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
)

type Event struct {
	Type    EventType
	ChainId *big.Int
	Err     error
}

type Listener func(Event)

type ListenerId uint64

type registeredListener struct {
	event    EventType
	listener Listener
}

type Config struct {
	Backend Backend

	// RetryInterval paces handshake attempts while disconnected.
	RetryInterval time.Duration

	// HealthInterval is the delay between health checks once connected.
	// Zero disables the health loop; the provider then never reports disconnects.
	HealthInterval time.Duration

	Logger *zap.Logger
}

const DefaultRetryInterval = 2 * time.Second

// Provider is an EIP-1193 style event emitting transport in front of a remote signing Backend.
// Connect starts the handshake in the background; listeners learn about readiness through
// connect events. A provider may emit connect more than once (after a reconnect).
type Provider struct {
	backend        Backend
	retryInterval  time.Duration
	healthInterval time.Duration
	logger         *zap.Logger

	mu         sync.Mutex
	listeners  map[ListenerId]registeredListener
	nextId     ListenerId
	connected  bool
	started    bool
	closed     bool
	cancel     context.CancelFunc
	loopWg     sync.WaitGroup
	dispatchMu sync.Mutex
}

func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &Provider{
		backend:        cfg.Backend,
		retryInterval:  retryInterval,
		healthInterval: cfg.HealthInterval,
		logger:         cfg.Logger,
		listeners:      make(map[ListenerId]registeredListener),
	}, nil
}

// On registers a listener for the given event and returns its id for RemoveListener.
func (p *Provider) On(event EventType, listener Listener) ListenerId {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextId++
	id := p.nextId
	p.listeners[id] = registeredListener{event: event, listener: listener}
	return id
}

// RemoveListener deregisters a single listener. Unknown ids are ignored.
func (p *Provider) RemoveListener(id ListenerId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, id)
}

func (p *Provider) ListenerCount(event EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, l := range p.listeners {
		if l.event == event {
			count++
		}
	}
	return count
}

// Connect initiates the handshake without waiting for it. Calling it again is a no-op.
func (p *Provider) Connect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.loopWg.Add(1)
	go p.run(ctx)
}

func (p *Provider) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	p.mu.Lock()
	closed, connected := p.closed, p.connected
	p.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}
	if !connected {
		return nil, ErrNotConnected
	}
	return p.backend.SignTypedData(ctx, typedData)
}

// Close stops the handshake and health loops. Safe to call multiple times.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.loopWg.Wait()
	return nil
}

func (p *Provider) run(ctx context.Context) {
	defer p.loopWg.Done()

	limiter := rate.NewLimiter(rate.Every(p.retryInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		chainId, err := p.backend.Handshake(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Sugar().Warnw("Remote signer handshake failed", "error", err)
			if p.setConnected(false) {
				p.emit(Event{Type: EventDisconnect, Err: err})
			}
			continue
		}

		if p.setConnected(true) {
			p.logger.Sugar().Infow("Remote signer connected", "chainId", chainId.String())
			p.emit(Event{Type: EventConnect, ChainId: new(big.Int).Set(chainId)})
		}

		if p.healthInterval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.healthInterval):
		}
	}
}

// setConnected records the connection state and reports whether it changed.
func (p *Provider) setConnected(connected bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := p.connected != connected
	p.connected = connected
	return changed
}

// emit delivers an event to the listeners registered at the time of the call, in
// registration order. Listeners may add or remove listeners while being called.
func (p *Provider) emit(event Event) {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	p.mu.Lock()
	ids := make([]ListenerId, 0, len(p.listeners))
	for id, l := range p.listeners {
		if l.event == event.Type {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	snapshot := make([]Listener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, p.listeners[id].listener)
	}
	p.mu.Unlock()

	for _, l := range snapshot {
		l(event)
	}
}
