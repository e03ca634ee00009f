package fordefi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/Layr-Labs/vault-signer-go/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// ChainIdReader is the part of ethclient.Client the backend needs to learn the network it signs for.
type ChainIdReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

var _ ChainIdReader = (*ethclient.Client)(nil)

// IFordefiClient is the subset of Client used by Backend.
type IFordefiClient interface {
	GetVaultByAddress(ctx context.Context, address string) (*Vault, error)
	CreateTypedMessageTransaction(ctx context.Context, vaultId string, chain string, typedDataJSON []byte) (*Transaction, error)
	WaitForSignature(ctx context.Context, txId string) ([]byte, error)
}

var _ IFordefiClient = (*Client)(nil)

type BackendConfig struct {
	Client       IFordefiClient
	ChainReader  ChainIdReader
	VaultAddress common.Address
	// VaultId skips the address lookup when set.
	VaultId string
	Logger  *zap.Logger
}

// Backend signs typed data through a Fordefi EVM vault.
type Backend struct {
	client       IFordefiClient
	chainReader  ChainIdReader
	vaultAddress common.Address
	logger       *zap.Logger

	mu      sync.Mutex
	vaultId string
	chainId *big.Int
}

var _ provider.Backend = (*Backend)(nil)

func NewBackend(cfg *BackendConfig) (*Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("fordefi client is required")
	}
	if cfg.ChainReader == nil {
		return nil, fmt.Errorf("chain reader is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Backend{
		client:       cfg.Client,
		chainReader:  cfg.ChainReader,
		vaultAddress: cfg.VaultAddress,
		vaultId:      cfg.VaultId,
		logger:       cfg.Logger,
	}, nil
}

// Handshake resolves the vault and reads the chain id from the configured RPC endpoint.
func (b *Backend) Handshake(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	vaultId := b.vaultId
	b.mu.Unlock()

	if vaultId == "" {
		vault, err := b.client.GetVaultByAddress(ctx, b.vaultAddress.Hex())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve fordefi vault: %w", err)
		}
		vaultId = vault.Id
		b.logger.Sugar().Infow("Resolved fordefi vault",
			"vaultId", vault.Id,
			"vaultName", vault.Name,
			"address", b.vaultAddress.Hex(),
		)
	}

	chainId, err := b.chainReader.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id from rpc: %w", err)
	}

	b.mu.Lock()
	b.vaultId = vaultId
	b.chainId = new(big.Int).Set(chainId)
	b.mu.Unlock()
	return chainId, nil
}

func (b *Backend) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	b.mu.Lock()
	vaultId, chainId := b.vaultId, b.chainId
	b.mu.Unlock()
	if vaultId == "" || chainId == nil {
		return nil, fmt.Errorf("fordefi backend has not completed its handshake")
	}

	raw, err := json.Marshal(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed data: %w", err)
	}

	tx, err := b.client.CreateTypedMessageTransaction(ctx, vaultId, ChainName(chainId.Uint64()), raw)
	if err != nil {
		return nil, err
	}
	return b.client.WaitForSignature(ctx, tx.Id)
}
