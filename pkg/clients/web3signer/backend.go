package web3signer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/vault-signer-go/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// Backend exposes a Web3Signer account as a provider.Backend.
type Backend struct {
	client  IWeb3Signer
	account common.Address
	logger  *zap.Logger
}

var _ provider.Backend = (*Backend)(nil)

func NewBackend(client IWeb3Signer, account common.Address, logger *zap.Logger) *Backend {
	return &Backend{
		client:  client,
		account: account,
		logger:  logger,
	}
}

// Handshake checks that Web3Signer is up, that it holds the vault account and
// returns the downstream chain id.
func (b *Backend) Handshake(ctx context.Context) (*big.Int, error) {
	if err := b.client.Upcheck(ctx); err != nil {
		return nil, err
	}

	accounts, err := b.client.EthAccounts(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, a := range accounts {
		if strings.EqualFold(a, b.account.Hex()) {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("web3signer does not hold a key for %s", b.account.Hex())
	}

	return b.client.EthChainId(ctx)
}

func (b *Backend) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	sigHex, err := b.client.EthSignTypedData(ctx, b.account.Hex(), typedData)
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode web3signer signature: %w", err)
	}
	b.logger.Sugar().Debugw("Signed typed data with web3signer",
		"account", b.account.Hex(),
		"primaryType", typedData.PrimaryType,
	)
	return sig, nil
}
