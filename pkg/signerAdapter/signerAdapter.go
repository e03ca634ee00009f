package signerAdapter

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"sort"

	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const domainTypeName = "EIP712Domain"

// TypedDataSigner is anything that can sign a fully formed EIP-712 payload, usually a session handle.
type TypedDataSigner interface {
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}

// SignerAdapter presents the vault as a wallet to the exchange client. Every signature it requests
// is scoped to the configured chain, whatever chain id the caller put in the domain.
type SignerAdapter struct {
	signer   TypedDataSigner
	identity config.ChainIdentity
}

func New(signer TypedDataSigner, identity config.ChainIdentity) *SignerAdapter {
	return &SignerAdapter{
		signer:   signer,
		identity: identity,
	}
}

// GetAddress returns the configured vault address without touching the network.
func (a *SignerAdapter) GetAddress(_ context.Context) (common.Address, error) {
	return a.identity.VaultAddress, nil
}

// SignTypedData signs value under domain with its chain id replaced by the configured chain id.
// The signature and any error from the remote signer are returned unchanged.
func (a *SignerAdapter) SignTypedData(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, value apitypes.TypedDataMessage) ([]byte, error) {
	scoped := domain
	scoped.ChainId = (*math.HexOrDecimal256)(new(big.Int).SetUint64(uint64(a.identity.ChainId)))

	primaryType, err := primaryTypeOf(types)
	if err != nil {
		return nil, err
	}

	return a.signer.SignTypedData(ctx, apitypes.TypedData{
		Types:       withDomainType(types, scoped),
		PrimaryType: primaryType,
		Domain:      scoped,
		Message:     value,
	})
}

var typeSuffix = regexp.MustCompile(`(\[\d*\])+$`)

// primaryTypeOf finds the one struct type no other struct type refers to.
func primaryTypeOf(types apitypes.Types) (string, error) {
	referenced := make(map[string]bool)
	for name, fields := range types {
		if name == domainTypeName {
			continue
		}
		for _, f := range fields {
			base := typeSuffix.ReplaceAllString(f.Type, "")
			if base != name {
				referenced[base] = true
			}
		}
	}

	var candidates []string
	for name := range types {
		if name == domainTypeName || referenced[name] {
			continue
		}
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fmt.Errorf("missing primary type in typed data types")
	default:
		return "", fmt.Errorf("ambiguous primary types or unused types: %v", candidates)
	}
}

// withDomainType returns a copy of types whose EIP712Domain entry lists exactly the fields set in domain.
func withDomainType(types apitypes.Types, domain apitypes.TypedDataDomain) apitypes.Types {
	var fields []apitypes.Type
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}

	out := make(apitypes.Types, len(types)+1)
	for name, typeFields := range types {
		out[name] = typeFields
	}
	out[domainTypeName] = fields
	return out
}
