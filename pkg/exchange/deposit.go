package exchange

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	ActionDeposit = "batchedDepositWithPermit"

	PrimaryTypePermit = "Permit"

	usdcDomainName    = "USD Coin"
	usdcDomainVersion = "2"
	usdcDecimals      = 6

	DefaultPermitTTL = time.Hour
)

var (
	// ArbitrumUsdcAddress is native USDC on Arbitrum One.
	ArbitrumUsdcAddress = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	// ArbitrumBridgeAddress is the Hyperliquid Bridge2 contract on Arbitrum One.
	ArbitrumBridgeAddress = common.HexToAddress("0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7")
)

var permitFields = []apitypes.Type{
	{Name: "owner", Type: "address"},
	{Name: "spender", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
}

// NonceReader returns the current EIP-2612 permit nonce of owner on token.
type NonceReader interface {
	Nonce(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error)
}

type PermitConfig struct {
	// ChainId of the network the USDC contract lives on; it becomes the permit domain chain id.
	ChainId *big.Int
	Token   common.Address
	Bridge  common.Address
	// RelayUrl receives the signed permit and submits batchedDepositWithPermit on chain.
	RelayUrl    string
	TTL         time.Duration
	NonceReader NonceReader
}

type depositRequest struct {
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Usd       uint64    `json:"usd"`
	Deadline  uint64    `json:"deadline"`
	Signature Signature `json:"signature"`
}

func withPermitDefaults(cfg *PermitConfig) (*PermitConfig, error) {
	if cfg == nil {
		return nil, nil
	}
	if cfg.ChainId == nil {
		return nil, fmt.Errorf("permit chain id is required")
	}
	permit := *cfg
	if permit.Token == (common.Address{}) {
		permit.Token = ArbitrumUsdcAddress
	}
	if permit.Bridge == (common.Address{}) {
		permit.Bridge = ArbitrumBridgeAddress
	}
	if permit.TTL <= 0 {
		permit.TTL = DefaultPermitTTL
	}
	return &permit, nil
}

// Deposit authorizes the bridge to pull amount USDC from the vault with a permit and hands the
// signed permit to the deposit relay. from must be the vault address, since the permit is signed
// by the vault key.
func (c *Client) Deposit(ctx context.Context, from string, amount string) (*Response, error) {
	if c.permit == nil || c.permit.RelayUrl == "" {
		return nil, fmt.Errorf("deposit relay url is not configured")
	}
	if c.permit.NonceReader == nil {
		return nil, fmt.Errorf("deposit nonce reader is not configured")
	}
	if !common.IsHexAddress(from) {
		return nil, fmt.Errorf("invalid deposit source address %q", from)
	}

	owner, err := c.wallet.GetAddress(ctx)
	if err != nil {
		return nil, err
	}
	if common.HexToAddress(from) != owner {
		return nil, fmt.Errorf("deposit source %s does not match the signing vault %s", from, owner.Hex())
	}

	value, err := ParseUsdc(amount)
	if err != nil {
		return nil, err
	}

	nonce, err := c.permit.NonceReader.Nonce(ctx, c.permit.Token, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read permit nonce: %w", err)
	}

	deadline := uint64(c.now().Add(c.permit.TTL).Unix())

	domain := apitypes.TypedDataDomain{
		Name:              usdcDomainName,
		Version:           usdcDomainVersion,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(c.permit.ChainId)),
		VerifyingContract: c.permit.Token.Hex(),
	}
	raw, err := c.wallet.SignTypedData(ctx, domain, apitypes.Types{PrimaryTypePermit: permitFields}, apitypes.TypedDataMessage{
		"owner":    owner.Hex(),
		"spender":  c.permit.Bridge.Hex(),
		"value":    new(big.Int).Set(value),
		"nonce":    nonce,
		"deadline": new(big.Int).SetUint64(deadline),
	})
	if err != nil {
		return nil, err
	}
	sig, err := splitSignature(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Sugar().Infow("Submitting deposit permit",
		"owner", owner.Hex(),
		"amount", amount,
		"permitNonce", nonce.String(),
		"deadline", deadline,
	)
	return c.post(ctx, c.permit.RelayUrl, ActionDeposit, &depositRequest{
		Action:    ActionDeposit,
		User:      strings.ToLower(owner.Hex()),
		Usd:       value.Uint64(),
		Deadline:  deadline,
		Signature: sig,
	})
}

// ParseUsdc converts a positive decimal USDC amount into its six decimal base unit value.
func ParseUsdc(amount string) (*big.Int, error) {
	r, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(usdcDecimals), nil)))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, usdcDecimals)
	}
	if !r.Num().IsUint64() {
		return nil, fmt.Errorf("amount %q is too large", amount)
	}
	return new(big.Int).Set(r.Num()), nil
}

const erc20PermitNoncesAbi = `[{"inputs":[{"internalType":"address","name":"owner","type":"address"}],"name":"nonces","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// ContractCaller is satisfied by ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractNonceReader reads permit nonces with an eth_call to the token's nonces(address).
type ContractNonceReader struct {
	caller ContractCaller
	abi    abi.ABI
}

func NewContractNonceReader(caller ContractCaller) (*ContractNonceReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20PermitNoncesAbi))
	if err != nil {
		return nil, fmt.Errorf("failed to parse nonces abi: %w", err)
	}
	return &ContractNonceReader{caller: caller, abi: parsed}, nil
}

func (r *ContractNonceReader) Nonce(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error) {
	data, err := r.abi.Pack("nonces", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack nonces call: %w", err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("nonces call failed: %w", err)
	}
	values, err := r.abi.Unpack("nonces", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack nonces result: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected nonces result length %d", len(values))
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonces result type %T", values[0])
	}
	return nonce, nil
}
