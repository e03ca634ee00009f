package web3signer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Config holds the connection settings for a Web3Signer instance.
type Config struct {
	BaseURL string
	Timeout time.Duration
	CACert  string
	Cert    string
	Key     string
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:9000",
		Timeout: 30 * time.Second,
	}
}

func NewConfigWithTLS(baseURL, caCert, cert, key string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.CACert = caCert
	cfg.Cert = cert
	cfg.Key = key
	return cfg
}

// Client talks to Web3Signer's eth1 JSON-RPC interface and its REST health endpoint.
type Client struct {
	baseURL    string
	logger     *zap.Logger
	httpClient *http.Client

	mu        sync.Mutex
	rpcClient *rpc.Client
}

func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("web3signer base URL cannot be empty")
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.CACert != "" || cfg.Cert != "" {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     logger,
		httpClient: httpClient,
	}, nil
}

// NewWeb3SignerClientFromRemoteSignerConfig builds a client from the shared remote signer config.
// A nil config yields a client for the default local Web3Signer.
func NewWeb3SignerClientFromRemoteSignerConfig(rsc *config.RemoteSignerConfig, logger *zap.Logger) (*Client, error) {
	if rsc == nil {
		return NewClient(DefaultConfig(), logger)
	}
	return NewClient(NewConfigWithTLS(rsc.Url, rsc.CACert, rsc.Cert, rsc.Key), logger)
}

func buildTLSConfig(cfg *Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
			return nil, fmt.Errorf("failed to parse web3signer CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.Cert != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.Cert), []byte(cfg.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to load web3signer client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func (c *Client) dial(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		return c.rpcClient, nil
	}
	client, err := rpc.DialOptions(ctx, c.baseURL, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to dial web3signer at %s: %w", c.baseURL, err)
	}
	c.rpcClient = client
	return client, nil
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.logger.Sugar().Debugw("Calling web3signer", "method", method)
	if err := client.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("web3signer %s failed: %w", method, err)
	}
	return nil
}

func (c *Client) EthAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) EthSignTypedData(ctx context.Context, account string, typedData interface{}) (string, error) {
	var signature string
	if err := c.call(ctx, &signature, "eth_signTypedData", account, typedData); err != nil {
		return "", err
	}
	return signature, nil
}

// EthChainId returns the chain id of the network Web3Signer proxies to.
func (c *Client) EthChainId(ctx context.Context) (*big.Int, error) {
	var chainId hexutil.Big
	if err := c.call(ctx, &chainId, "eth_chainId"); err != nil {
		return nil, err
	}
	return chainId.ToInt(), nil
}

// Upcheck calls the REST health endpoint.
func (c *Client) Upcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/upcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create upcheck request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("web3signer upcheck failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("web3signer upcheck returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
