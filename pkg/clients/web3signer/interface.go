package web3signer

import (
	"context"
	"math/big"
)

// IWeb3Signer is the part of the Web3Signer eth1 API the vault backend relies on.
type IWeb3Signer interface {
	// EthAccounts returns the accounts Web3Signer holds keys for (eth_accounts).
	EthAccounts(ctx context.Context) ([]string, error)

	// EthSignTypedData signs EIP-712 typed data with the specified account (eth_signTypedData).
	EthSignTypedData(ctx context.Context, account string, typedData interface{}) (string, error)

	// EthChainId returns the chain id of the downstream network.
	EthChainId(ctx context.Context) (*big.Int, error)

	// Upcheck reports whether the Web3Signer instance is serving requests.
	Upcheck(ctx context.Context) error
}

var _ IWeb3Signer = (*Client)(nil)
