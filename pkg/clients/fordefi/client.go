package fordefi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/vault-signer-go/pkg/payloadSigner"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	transactionsPath = "/api/v1/transactions"
	vaultsPath       = "/api/v1/vaults"

	TransactionTypeEvmMessage = "evm_message"
	SignerTypeApiSigner       = "api_signer"
	MessageTypeTypedData      = "typed_message_type"

	StateCompleted = "completed"

	DefaultPollInterval = time.Second
	DefaultHttpTimeout  = 30 * time.Second
)

// terminalFailureStates are transaction states that will never produce a signature.
var terminalFailureStates = map[string]bool{
	"aborted":                      true,
	"cancelled":                    true,
	"error_signing":                true,
	"error_pushing_to_blockchain":  true,
	"rejected":                     true,
	"stuck":                        true,
	"dropped":                      true,
	"reverted":                     true,
	"insufficient_funds_for_fees":  true,
	"waiting_for_approval_expired": true,
}

type ClientConfig struct {
	ApiUrl        string
	ApiUserToken  string
	PayloadSigner payloadSigner.IPayloadSigner
	HttpClient    *http.Client
	PollInterval  time.Duration
	Logger        *zap.Logger
}

// Client is a minimal Fordefi REST API client covering vault lookup and typed message signing.
type Client struct {
	apiUrl        string
	apiUserToken  string
	payloadSigner payloadSigner.IPayloadSigner
	httpClient    *http.Client
	pollLimiter   *rate.Limiter
	logger        *zap.Logger

	now func() time.Time
}

func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.ApiUrl == "" {
		return nil, fmt.Errorf("fordefi api url is required")
	}
	if cfg.ApiUserToken == "" {
		return nil, fmt.Errorf("fordefi api user token is required")
	}
	if cfg.PayloadSigner == nil {
		return nil, fmt.Errorf("fordefi payload signer is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	httpClient := cfg.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHttpTimeout}
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Client{
		apiUrl:        strings.TrimSuffix(cfg.ApiUrl, "/"),
		apiUserToken:  cfg.ApiUserToken,
		payloadSigner: cfg.PayloadSigner,
		httpClient:    httpClient,
		pollLimiter:   rate.NewLimiter(rate.Every(pollInterval), 1),
		logger:        cfg.Logger,
		now:           time.Now,
	}, nil
}

type Vault struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Type    string `json:"type"`
	State   string `json:"state"`
}

type listVaultsResponse struct {
	Vaults []Vault `json:"vaults"`
}

type TypedMessageDetails struct {
	Type    string `json:"type"`
	Chain   string `json:"chain"`
	RawData string `json:"raw_data"`
}

type CreateTransactionRequest struct {
	VaultId    string              `json:"vault_id"`
	SignerType string              `json:"signer_type"`
	Type       string              `json:"type"`
	Details    TypedMessageDetails `json:"details"`
}

type TransactionSignature struct {
	Data string `json:"data"`
}

type Transaction struct {
	Id         string                 `json:"id"`
	State      string                 `json:"state"`
	Signatures []TransactionSignature `json:"signatures"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	RequestId  string `json:"request_id"`
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return fmt.Sprintf("fordefi api returned status %d: %s", e.StatusCode, msg)
}

// ChainName returns the Fordefi chain identifier for an EVM chain id.
func ChainName(chainId uint64) string {
	return "evm_" + strconv.FormatUint(chainId, 10)
}

// GetVaultByAddress returns the EVM vault holding the given address.
func (c *Client) GetVaultByAddress(ctx context.Context, address string) (*Vault, error) {
	query := url.Values{}
	query.Set("address", address)
	query.Set("vault_types", "evm")

	var res listVaultsResponse
	if err := c.do(ctx, http.MethodGet, vaultsPath, query, nil, &res); err != nil {
		return nil, err
	}
	for i := range res.Vaults {
		if strings.EqualFold(res.Vaults[i].Address, address) {
			return &res.Vaults[i], nil
		}
	}
	return nil, fmt.Errorf("no fordefi vault found for address %s", address)
}

// CreateTypedMessageTransaction submits an EIP-712 signing request for the vault.
func (c *Client) CreateTypedMessageTransaction(ctx context.Context, vaultId string, chain string, typedDataJSON []byte) (*Transaction, error) {
	req := &CreateTransactionRequest{
		VaultId:    vaultId,
		SignerType: SignerTypeApiSigner,
		Type:       TransactionTypeEvmMessage,
		Details: TypedMessageDetails{
			Type:    MessageTypeTypedData,
			Chain:   chain,
			RawData: string(typedDataJSON),
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction request: %w", err)
	}

	var tx Transaction
	if err := c.do(ctx, http.MethodPost, transactionsPath, nil, body, &tx); err != nil {
		return nil, err
	}
	c.logger.Sugar().Infow("Created fordefi typed message transaction",
		"transactionId", tx.Id,
		"vaultId", vaultId,
		"chain", chain,
		"state", tx.State,
	)
	return &tx, nil
}

func (c *Client) GetTransaction(ctx context.Context, txId string) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, http.MethodGet, transactionsPath+"/"+url.PathEscape(txId), nil, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// WaitForSignature polls the transaction until it completes and returns its first signature.
func (c *Client) WaitForSignature(ctx context.Context, txId string) ([]byte, error) {
	for {
		if err := c.pollLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("stopped waiting for fordefi transaction %s: %w", txId, err)
		}
		tx, err := c.GetTransaction(ctx, txId)
		if err != nil {
			return nil, err
		}

		if tx.State == StateCompleted {
			if len(tx.Signatures) == 0 {
				return nil, fmt.Errorf("fordefi transaction %s completed without a signature", txId)
			}
			sig, err := base64.StdEncoding.DecodeString(tx.Signatures[0].Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode fordefi signature: %w", err)
			}
			return sig, nil
		}
		if terminalFailureStates[tx.State] {
			return nil, fmt.Errorf("fordefi transaction %s ended in state %s", txId, tx.State)
		}
		c.logger.Sugar().Debugw("Waiting for fordefi signature", "transactionId", txId, "state", tx.State)
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	target := c.apiUrl + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiUserToken)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		timestamp := c.now().UnixMilli()
		signature, err := c.payloadSigner.Sign(ctx, payloadSigner.BuildSigningPayload(path, timestamp, body))
		if err != nil {
			return fmt.Errorf("failed to sign fordefi request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-signature", base64.StdEncoding.EncodeToString(signature))
		req.Header.Set("x-timestamp", strconv.FormatInt(timestamp, 10))
		req.Header.Set("x-idempotence-id", uuid.New().String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fordefi request %s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read fordefi response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Title == "" {
			apiErr.Title = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode fordefi response: %w", err)
	}
	return nil
}
