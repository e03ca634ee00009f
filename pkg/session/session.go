package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/Layr-Labs/vault-signer-go/pkg/provider"
	"github.com/Layr-Labs/vault-signer-go/pkg/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

var (
	ErrSessionTimeout = errors.New("timed out waiting for the remote signer to connect")
	ErrSessionClosed  = errors.New("session is closed")
)

// Transport is the event emitting remote signing connection a Session drives.
type Transport interface {
	Connect()
	On(event provider.EventType, listener provider.Listener) provider.ListenerId
	RemoveListener(id provider.ListenerId)
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
	Close() error
}

var _ Transport = (*provider.Provider)(nil)

// Dialer constructs a transport for the given chain identity without connecting it.
type Dialer func(ctx context.Context, identity config.ChainIdentity) (Transport, error)

type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type Config struct {
	Identity       config.ChainIdentity
	Dial           Dialer
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Handle is the live, connected transport. A Session hands out the same *Handle to every caller.
type Handle struct {
	transport     Transport
	identity      config.ChainIdentity
	remoteChainId *big.Int
}

func (h *Handle) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	return h.transport.SignTypedData(ctx, typedData)
}

// RemoteChainId is the chain id the remote signer reported when it connected.
func (h *Handle) RemoteChainId() *big.Int {
	if h.remoteChainId == nil {
		return nil
	}
	return new(big.Int).Set(h.remoteChainId)
}

func (h *Handle) Identity() config.ChainIdentity {
	return h.identity
}

// attempt is a single in-flight connection attempt shared by every caller that arrives while
// the session is connecting.
type attempt struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// Session lazily establishes exactly one connected Handle and caches it for the process lifetime.
//
// The first Acquire dials the transport and waits for its first connect event; concurrent callers
// join that attempt. A failed or timed out attempt leaves the session uninitialized so a later
// Acquire can try again.
type Session struct {
	identity       config.ChainIdentity
	dial           Dialer
	connectTimeout time.Duration
	logger         *zap.Logger

	mu       sync.Mutex
	state    State
	handle   *Handle
	inflight *attempt
	closed   bool
}

func New(cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, types.ErrConfigRequired
	}
	if err := cfg.Identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrConfigRequired, err)
	}
	if cfg.Dial == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = config.DefaultConnectTimeout
	}
	return &Session{
		identity:       cfg.Identity,
		dial:           cfg.Dial,
		connectTimeout: timeout,
		logger:         cfg.Logger,
	}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Acquire returns the connected handle, establishing it first if needed.
//
// Cancelling ctx abandons the wait for this caller only; the shared attempt keeps running until
// it connects or hits the connect timeout.
func (s *Session) Acquire(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", types.ErrConnectionFailure, ErrSessionClosed)
	}

	var a *attempt
	switch s.state {
	case StateReady:
		h := s.handle
		s.mu.Unlock()
		return h, nil
	case StateConnecting:
		a = s.inflight
	default:
		a = &attempt{done: make(chan struct{})}
		s.inflight = a
		s.state = StateConnecting
		go s.establish(a)
	}
	s.mu.Unlock()

	select {
	case <-a.done:
		return a.handle, a.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", types.ErrConnectionFailure, ctx.Err())
	}
}

func (s *Session) establish(a *attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout)
	defer cancel()

	s.logger.Sugar().Infow("Connecting to remote signer",
		"chainId", uint(s.identity.ChainId),
		"vaultAddress", s.identity.VaultAddress.Hex(),
	)

	transport, err := s.dial(ctx, s.identity)
	if err != nil {
		s.finish(a, nil, fmt.Errorf("%w: failed to create transport: %w", types.ErrConnectionFailure, err))
		return
	}

	signal := armReadySignal(transport)
	transport.Connect()

	select {
	case event := <-signal.C():
		s.logger.Sugar().Infow("Connected to chain", "chainId", event.ChainId.String())
		if event.ChainId != nil && event.ChainId.Cmp(s.identity.ChainId.BigInt()) != 0 {
			s.logger.Sugar().Warnw("Remote signer chain differs from the configured chain; signatures use the configured chain",
				"remoteChainId", event.ChainId.String(),
				"configuredChainId", uint(s.identity.ChainId),
			)
		}
		s.finish(a, &Handle{
			transport:     transport,
			identity:      s.identity,
			remoteChainId: event.ChainId,
		}, nil)
	case <-ctx.Done():
		signal.Cancel()
		if closeErr := transport.Close(); closeErr != nil {
			s.logger.Sugar().Warnw("Failed to close transport", "error", closeErr)
		}
		s.finish(a, nil, fmt.Errorf("%w: %w after %s", types.ErrConnectionFailure, ErrSessionTimeout, s.connectTimeout))
	}
}

func (s *Session) finish(a *attempt, h *Handle, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil && s.closed {
		_ = h.transport.Close()
		h, err = nil, fmt.Errorf("%w: %w", types.ErrConnectionFailure, ErrSessionClosed)
	}

	s.inflight = nil
	if err != nil {
		s.state = StateUninitialized
		s.logger.Sugar().Errorw("Remote signer connection failed", "error", err)
	} else {
		s.state = StateReady
		s.handle = h
	}
	a.handle, a.err = h, err
	close(a.done)
}

// Close releases the connected transport. Acquire fails afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h != nil {
		return h.transport.Close()
	}
	return nil
}
