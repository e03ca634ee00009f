package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the vault signer
const (
	EnvVaultChainID            = "VAULT_CHAIN_ID"
	EnvVaultAddress            = "VAULT_ADDRESS"
	EnvVaultSignerType         = "VAULT_SIGNER_TYPE"
	EnvFordefiApiUrl           = "FORDEFI_API_URL"
	EnvFordefiApiUserToken     = "FORDEFI_API_USER_TOKEN"
	EnvFordefiVaultID          = "FORDEFI_VAULT_ID"
	EnvFordefiPayloadSigner    = "FORDEFI_PAYLOAD_SIGNER"
	EnvFordefiPayloadKeyPath   = "FORDEFI_PAYLOAD_KEY_PATH"
	EnvFordefiPayloadKmsKeyID  = "FORDEFI_PAYLOAD_KMS_KEY_ID"
	EnvAwsRegion               = "AWS_REGION"
	EnvRpcUrl                  = "VAULT_RPC_URL"
	EnvWeb3SignerUrl           = "WEB3SIGNER_URL"
	EnvExchangeUrl             = "HYPERLIQUID_API_URL"
	EnvExchangeMainnet         = "HYPERLIQUID_MAINNET"
	EnvExchangeDepositRelayUrl = "HYPERLIQUID_DEPOSIT_RELAY_URL"
	EnvPersistenceType         = "VAULT_PERSISTENCE_TYPE"
	EnvPersistenceDataPath     = "VAULT_PERSISTENCE_DATA_PATH"
	EnvRedisAddress            = "VAULT_REDIS_ADDRESS"
	EnvRedisPassword           = "VAULT_REDIS_PASSWORD"
	EnvConnectTimeout          = "VAULT_CONNECT_TIMEOUT"
	EnvVerbose                 = "VAULT_VERBOSE"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_ArbitrumOne     ChainId = 42161
	ChainId_ArbitrumSepolia ChainId = 421614
	ChainId_Anvil           ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_ArbitrumOne     ChainName = "arbitrum"
	ChainName_ArbitrumSepolia ChainName = "arbitrum-sepolia"
	ChainName_Anvil           ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_ArbitrumOne:     ChainName_ArbitrumOne,
	ChainId_ArbitrumSepolia: ChainName_ArbitrumSepolia,
	ChainId_Anvil:           ChainName_Anvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_ArbitrumOne:     ChainId_ArbitrumOne,
	ChainName_ArbitrumSepolia: ChainId_ArbitrumSepolia,
	ChainName_Anvil:           ChainId_Anvil,
}

func (c ChainId) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(c))
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (arbitrum), %d (arbitrum-sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_ArbitrumOne, ChainId_ArbitrumSepolia, ChainId_Anvil)
}

// ChainIdentity is the chain every signature produced for the vault is scoped to.
// It is supplied once at configuration time and never changes for the life of the process.
type ChainIdentity struct {
	ChainId      ChainId        `json:"chainId" yaml:"chainId"`
	VaultAddress common.Address `json:"vaultAddress" yaml:"vaultAddress"`
}

func (ci ChainIdentity) Validate() error {
	var allErrors field.ErrorList
	if _, ok := ChainIdToName[ci.ChainId]; !ok {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("chainId"), ci.ChainId, supportedChainIdValues()))
	}
	if ci.VaultAddress == (common.Address{}) {
		allErrors = append(allErrors, field.Required(field.NewPath("vaultAddress"), "vaultAddress is required"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func supportedChainIdValues() []string {
	values := make([]string, 0, len(ChainIdToName))
	for id := range ChainIdToName {
		values = append(values, fmt.Sprintf("%d", id))
	}
	return values
}

type SignerType string

const (
	SignerTypeFordefi    SignerType = "fordefi"
	SignerTypeWeb3Signer SignerType = "web3signer"
)

type PayloadSignerType string

const (
	PayloadSignerTypePem    PayloadSignerType = "pem"
	PayloadSignerTypeAwsKms PayloadSignerType = "aws-kms"
)

// FordefiConfig configures the Fordefi API backed remote signer.
type FordefiConfig struct {
	ApiUrl       string `json:"apiUrl" yaml:"apiUrl"`
	ApiUserToken string `json:"apiUserToken" yaml:"apiUserToken"`
	// VaultId is optional; when empty the vault is resolved from the vault address.
	VaultId string `json:"vaultId" yaml:"vaultId"`
	RpcUrl  string `json:"rpcUrl" yaml:"rpcUrl"`

	PayloadSigner PayloadSignerType `json:"payloadSigner" yaml:"payloadSigner"`
	// PayloadSignKey holds the PEM encoded API payload signing key (pem signer only).
	PayloadSignKey []byte `json:"-" yaml:"-"`
	KmsKeyId       string `json:"kmsKeyId" yaml:"kmsKeyId"`
	AwsRegion      string `json:"awsRegion" yaml:"awsRegion"`
}

const DefaultFordefiApiUrl = "https://api.fordefi.com"

func (fc *FordefiConfig) Validate() error {
	var allErrors field.ErrorList
	if fc.ApiUserToken == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("apiUserToken"), "apiUserToken is required"))
	}
	if fc.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("rpcUrl"), "rpcUrl is required"))
	}
	switch fc.PayloadSigner {
	case PayloadSignerTypePem:
		if len(fc.PayloadSignKey) == 0 {
			allErrors = append(allErrors, field.Required(field.NewPath("payloadSignKey"), "payload signing key is required for the pem payload signer"))
		}
	case PayloadSignerTypeAwsKms:
		if fc.KmsKeyId == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("kmsKeyId"), "kmsKeyId is required for the aws-kms payload signer"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("payloadSigner"), fc.PayloadSigner, []string{
			string(PayloadSignerTypePem), string(PayloadSignerTypeAwsKms),
		}))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type RemoteSignerConfig struct {
	Url         string `json:"url" yaml:"url"`
	CACert      string `json:"caCert" yaml:"caCert"`
	Cert        string `json:"cert" yaml:"cert"`
	Key         string `json:"key" yaml:"key"`
	FromAddress string `json:"fromAddress" yaml:"fromAddress"`
	PublicKey   string `json:"publicKey" yaml:"publicKey"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if rsc.Url == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("url"), "url is required"))
	}
	if rsc.FromAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("fromAddress"), "fromAddress is required"))
	} else if !common.IsHexAddress(rsc.FromAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("fromAddress"), rsc.FromAddress, "must be a hex address"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type ExchangeConfig struct {
	ApiUrl          string `json:"apiUrl" yaml:"apiUrl"`
	Mainnet         bool   `json:"mainnet" yaml:"mainnet"`
	DepositRelayUrl string `json:"depositRelayUrl" yaml:"depositRelayUrl"`
}

const (
	HyperliquidMainnetApiUrl = "https://api.hyperliquid.xyz"
	HyperliquidTestnetApiUrl = "https://api.hyperliquid-testnet.xyz"
)

type PersistenceType string

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

type PersistenceConfig struct {
	Type           PersistenceType `json:"type" yaml:"type"`
	DataPath       string          `json:"dataPath" yaml:"dataPath"`
	RedisAddress   string          `json:"redisAddress" yaml:"redisAddress"`
	RedisPassword  string          `json:"-" yaml:"-"`
	RedisDB        int             `json:"redisDb" yaml:"redisDb"`
	RedisKeyPrefix string          `json:"redisKeyPrefix" yaml:"redisKeyPrefix"`
}

func (pc *PersistenceConfig) Validate() error {
	var allErrors field.ErrorList
	switch pc.Type {
	case PersistenceTypeMemory, "":
	case PersistenceTypeBadger:
		if pc.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if pc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for redis persistence"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("type"), pc.Type, []string{
			string(PersistenceTypeMemory), string(PersistenceTypeBadger), string(PersistenceTypeRedis),
		}))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

const DefaultConnectTimeout = 30 * time.Second

// VaultSignerConfig represents the complete configuration for the vault signer
type VaultSignerConfig struct {
	Identity   ChainIdentity       `json:"identity"`
	SignerType SignerType          `json:"signerType"`
	Fordefi    *FordefiConfig      `json:"fordefi,omitempty"`
	Web3Signer *RemoteSignerConfig `json:"web3Signer,omitempty"`

	Exchange    ExchangeConfig    `json:"exchange"`
	Persistence PersistenceConfig `json:"persistence"`

	ConnectTimeout time.Duration `json:"connectTimeout"`
	Verbose        bool          `json:"verbose"`
}

// Validate checks the full configuration. Missing credentials or key material
// are reported here so the signing core never starts without them.
func (c *VaultSignerConfig) Validate() error {
	var allErrors field.ErrorList

	if err := c.Identity.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("identity"), c.Identity, err.Error()))
	}

	switch c.SignerType {
	case SignerTypeFordefi:
		if c.Fordefi == nil {
			allErrors = append(allErrors, field.Required(field.NewPath("fordefi"), "fordefi configuration is required"))
		} else if err := c.Fordefi.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("fordefi"), "<redacted>", err.Error()))
		}
	case SignerTypeWeb3Signer:
		if c.Web3Signer == nil {
			allErrors = append(allErrors, field.Required(field.NewPath("web3Signer"), "web3signer configuration is required"))
		} else if err := c.Web3Signer.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("web3Signer"), c.Web3Signer.Url, err.Error()))
		} else if !strings.EqualFold(common.HexToAddress(c.Web3Signer.FromAddress).Hex(), c.Identity.VaultAddress.Hex()) {
			allErrors = append(allErrors, field.Invalid(field.NewPath("web3Signer", "fromAddress"), c.Web3Signer.FromAddress, "must match the vault address"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("signerType"), c.SignerType, []string{
			string(SignerTypeFordefi), string(SignerTypeWeb3Signer),
		}))
	}

	if c.Exchange.ApiUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("exchange", "apiUrl"), "exchange apiUrl is required"))
	}

	if err := c.Persistence.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("persistence"), c.Persistence.Type, err.Error()))
	}

	if c.ConnectTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("connectTimeout"), c.ConnectTimeout, "must not be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return nil
}

// LoadPayloadSignKey reads the PEM encoded Fordefi API payload signing key.
func LoadPayloadSignKey(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("payload signing key path cannot be empty")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload signing key: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("payload signing key at %s is empty", path)
	}
	return data, nil
}
