package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

const (
	// DefaultSignatureChainId is the chain id Hyperliquid's own SDKs stamp on user-signed actions.
	DefaultSignatureChainId = "0x66eee"

	ChainMainnet = "Mainnet"
	ChainTestnet = "Testnet"

	exchangePath = "/exchange"

	defaultHttpTimeout = 30 * time.Second
)

// Wallet is the signing capability the exchange client needs: the account address and EIP-712 signing.
type Wallet interface {
	GetAddress(ctx context.Context) (common.Address, error)
	SignTypedData(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, value apitypes.TypedDataMessage) ([]byte, error)
}

type ClientConfig struct {
	Wallet  Wallet
	BaseUrl string
	// IsMainnet selects the hyperliquidChain value carried in every user-signed action.
	IsMainnet bool
	// SignatureChainId is the hex chain id placed in the action and the signing domain.
	SignatureChainId string
	// VaultAddress is set when acting on behalf of a Hyperliquid vault or subaccount.
	VaultAddress *common.Address
	HttpClient   *http.Client
	Permit       *PermitConfig
	Logger       *zap.Logger
}

// Client submits user-signed actions to the Hyperliquid exchange endpoint.
type Client struct {
	wallet           Wallet
	baseUrl          string
	isMainnet        bool
	signatureChainId string
	vaultAddress     *common.Address
	httpClient       *http.Client
	permit           *PermitConfig
	logger           *zap.Logger

	lastNonce atomic.Uint64
	now       func() time.Time
}

func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("wallet is required")
	}
	if cfg.BaseUrl == "" {
		return nil, fmt.Errorf("exchange base url is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	signatureChainId := cfg.SignatureChainId
	if signatureChainId == "" {
		signatureChainId = DefaultSignatureChainId
	}
	if _, err := parseHexChainId(signatureChainId); err != nil {
		return nil, err
	}
	permit, err := withPermitDefaults(cfg.Permit)
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHttpTimeout}
	}

	return &Client{
		wallet:           cfg.Wallet,
		baseUrl:          strings.TrimSuffix(cfg.BaseUrl, "/"),
		isMainnet:        cfg.IsMainnet,
		signatureChainId: signatureChainId,
		vaultAddress:     cfg.VaultAddress,
		httpClient:       httpClient,
		permit:           permit,
		logger:           cfg.Logger,
		now:              time.Now,
	}, nil
}

func (c *Client) hyperliquidChain() string {
	if c.isMainnet {
		return ChainMainnet
	}
	return ChainTestnet
}

// nextNonce returns a millisecond timestamp strictly greater than every nonce handed out before.
func (c *Client) nextNonce() uint64 {
	for {
		last := c.lastNonce.Load()
		next := uint64(c.now().UnixMilli())
		if next <= last {
			next = last + 1
		}
		if c.lastNonce.CompareAndSwap(last, next) {
			return next
		}
	}
}

type exchangeRequest struct {
	Action       interface{}     `json:"action"`
	Nonce        uint64          `json:"nonce"`
	Signature    Signature       `json:"signature"`
	VaultAddress *common.Address `json:"vaultAddress"`
}

func (c *Client) postAction(ctx context.Context, actionType string, action interface{}, nonce uint64, sig Signature) (*Response, error) {
	return c.post(ctx, c.baseUrl+exchangePath, actionType, &exchangeRequest{
		Action:       action,
		Nonce:        nonce,
		Signature:    sig,
		VaultAddress: c.vaultAddress,
	})
}

func (c *Client) post(ctx context.Context, url string, actionType string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", actionType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", actionType, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", actionType, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", actionType, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Action: actionType, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", actionType, err)
	}
	if result.Status != StatusOk {
		return nil, &Error{Action: actionType, Message: result.ErrorMessage()}
	}

	c.logger.Sugar().Debugw("Exchange accepted action", "action", actionType, "response", string(result.Response))
	return &result, nil
}
