package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	ActionWithdraw = "withdraw3"
	ActionUsdSend  = "usdSend"

	PrimaryTypeWithdraw = "HyperliquidTransaction:Withdraw"
	PrimaryTypeUsdSend  = "HyperliquidTransaction:UsdSend"

	userSignedDomainName    = "HyperliquidSignTransaction"
	userSignedDomainVersion = "1"
)

// transferFields is shared by withdraw3 and usdSend.
var transferFields = []apitypes.Type{
	{Name: "hyperliquidChain", Type: "string"},
	{Name: "destination", Type: "string"},
	{Name: "amount", Type: "string"},
	{Name: "time", Type: "uint64"},
}

type transferAction struct {
	Type             string `json:"type"`
	SignatureChainId string `json:"signatureChainId"`
	HyperliquidChain string `json:"hyperliquidChain"`
	Destination      string `json:"destination"`
	Amount           string `json:"amount"`
	Time             uint64 `json:"time"`
}

// Withdraw moves amount USDC from the exchange to destination on Arbitrum.
func (c *Client) Withdraw(ctx context.Context, destination string, amount string) (*Response, error) {
	return c.transfer(ctx, ActionWithdraw, PrimaryTypeWithdraw, destination, amount)
}

// Send transfers amount USDC to destination inside the exchange ledger.
func (c *Client) Send(ctx context.Context, destination string, amount string) (*Response, error) {
	return c.transfer(ctx, ActionUsdSend, PrimaryTypeUsdSend, destination, amount)
}

func (c *Client) transfer(ctx context.Context, actionType, primaryType, destination, amount string) (*Response, error) {
	if !common.IsHexAddress(destination) {
		return nil, fmt.Errorf("invalid destination address %q", destination)
	}
	if _, err := ParseAmount(amount); err != nil {
		return nil, err
	}

	nonce := c.nextNonce()
	action := &transferAction{
		Type:             actionType,
		SignatureChainId: c.signatureChainId,
		HyperliquidChain: c.hyperliquidChain(),
		Destination:      destination,
		Amount:           amount,
		Time:             nonce,
	}

	sig, err := c.signUserSignedAction(ctx, primaryType, transferFields, apitypes.TypedDataMessage{
		"hyperliquidChain": action.HyperliquidChain,
		"destination":      action.Destination,
		"amount":           action.Amount,
		"time":             new(big.Int).SetUint64(action.Time),
	})
	if err != nil {
		return nil, err
	}

	c.logger.Sugar().Infow("Submitting user signed action",
		"action", actionType,
		"destination", destination,
		"amount", amount,
		"nonce", nonce,
	)
	return c.postAction(ctx, actionType, action, nonce, sig)
}

func (c *Client) signUserSignedAction(ctx context.Context, primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) (Signature, error) {
	chainId, err := parseHexChainId(c.signatureChainId)
	if err != nil {
		return Signature{}, err
	}
	domain := apitypes.TypedDataDomain{
		Name:              userSignedDomainName,
		Version:           userSignedDomainVersion,
		ChainId:           (*math.HexOrDecimal256)(chainId),
		VerifyingContract: common.Address{}.Hex(),
	}
	types := apitypes.Types{primaryType: fields}

	raw, err := c.wallet.SignTypedData(ctx, domain, types, message)
	if err != nil {
		return Signature{}, err
	}
	return splitSignature(raw)
}
