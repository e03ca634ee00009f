package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/Layr-Labs/vault-signer-go/pkg/executor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "vault-signer",
		Usage: "Move Hyperliquid funds with a remotely custodied vault key",
		Description: `Signs Hyperliquid user actions with a vault key that never leaves the custody provider.

Supported operations:
- withdraw: exchange balance to an Arbitrum address
- send: USDC transfer inside the exchange ledger
- deposit: USDC permit handed to the bridge deposit relay`,
		Version: "1.0.0",
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "withdraw",
				Usage:  "Withdraw funds from the exchange to a destination address",
				Flags:  operationFlags("destination", executor.DefaultWithdrawAmount),
				Action: runWithdraw,
			},
			{
				Name:   "send",
				Usage:  "Send USDC to another exchange account",
				Flags:  operationFlags("destination", executor.DefaultSendAmount),
				Action: runSend,
			},
			{
				Name:   "deposit",
				Usage:  "Deposit USDC from the vault into the exchange",
				Flags:  operationFlags("from", ""),
				Action: runDeposit,
			},
			{
				Name:  "history",
				Usage: "List recorded operations, or show one with --id",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Operation ID to show",
					},
				},
				Action: runHistory,
				Subcommands: []*cli.Command{
					{
						Name:  "delete",
						Usage: "Remove one operation from the journal",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "id",
								Usage:    "Operation ID to remove",
								Required: true,
							},
						},
						Action: runHistoryDelete,
					},
					{
						Name:  "prune",
						Usage: "Remove finished operations older than --older-than",
						Flags: []cli.Flag{
							&cli.DurationFlag{
								Name:  "older-than",
								Usage: "Age of the oldest finished operation to keep",
								Value: 30 * 24 * time.Hour,
							},
						},
						Action: runHistoryPrune,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"chain"},
			Usage:   fmt.Sprintf("Chain ID the vault signs for (required to sign): %s", config.GetSupportedChainIDsString()),
			EnvVars: []string{config.EnvVaultChainID},
		},
		&cli.StringFlag{
			Name:    "vault-address",
			Aliases: []string{"vault"},
			Usage:   "Address of the custodied vault (required to sign)",
			EnvVars: []string{config.EnvVaultAddress},
		},
		&cli.StringFlag{
			Name:    "signer-type",
			Usage:   "Remote signer backend: fordefi or web3signer",
			Value:   string(config.SignerTypeFordefi),
			EnvVars: []string{config.EnvVaultSignerType},
		},
		&cli.StringFlag{
			Name:    "fordefi-api-url",
			Usage:   "Fordefi API base URL",
			Value:   config.DefaultFordefiApiUrl,
			EnvVars: []string{config.EnvFordefiApiUrl},
		},
		&cli.StringFlag{
			Name:    "fordefi-api-token",
			Usage:   "Fordefi API user access token",
			EnvVars: []string{config.EnvFordefiApiUserToken},
		},
		&cli.StringFlag{
			Name:    "fordefi-vault-id",
			Usage:   "Fordefi vault ID (resolved from the vault address when empty)",
			EnvVars: []string{config.EnvFordefiVaultID},
		},
		&cli.StringFlag{
			Name:    "payload-signer",
			Usage:   "Fordefi API payload signer: pem or aws-kms",
			Value:   string(config.PayloadSignerTypePem),
			EnvVars: []string{config.EnvFordefiPayloadSigner},
		},
		&cli.StringFlag{
			Name:    "payload-key-path",
			Usage:   "Path to the PEM encoded API payload signing key",
			EnvVars: []string{config.EnvFordefiPayloadKeyPath},
		},
		&cli.StringFlag{
			Name:    "kms-key-id",
			Usage:   "AWS KMS key ID used as the API payload signing key",
			EnvVars: []string{config.EnvFordefiPayloadKmsKeyID},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region override for KMS",
			EnvVars: []string{config.EnvAwsRegion},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"rpc"},
			Usage:   "EVM RPC endpoint for chain id checks and permit nonces",
			EnvVars: []string{config.EnvRpcUrl},
		},
		&cli.StringFlag{
			Name:    "web3signer-url",
			Usage:   "web3signer base URL",
			EnvVars: []string{config.EnvWeb3SignerUrl},
		},
		&cli.StringFlag{
			Name:  "web3signer-ca-cert",
			Usage: "CA certificate for web3signer mTLS",
		},
		&cli.StringFlag{
			Name:  "web3signer-cert",
			Usage: "Client certificate for web3signer mTLS",
		},
		&cli.StringFlag{
			Name:  "web3signer-key",
			Usage: "Client key for web3signer mTLS",
		},
		&cli.StringFlag{
			Name:    "exchange-url",
			Usage:   "Hyperliquid API base URL (defaults by network)",
			EnvVars: []string{config.EnvExchangeUrl},
		},
		&cli.BoolFlag{
			Name:    "mainnet",
			Usage:   "Act on Hyperliquid mainnet",
			EnvVars: []string{config.EnvExchangeMainnet},
		},
		&cli.StringFlag{
			Name:    "deposit-relay-url",
			Usage:   "Relay that submits signed deposit permits",
			EnvVars: []string{config.EnvExchangeDepositRelayUrl},
		},
		&cli.StringFlag{
			Name:    "persistence",
			Usage:   "Operation journal backend: memory, badger or redis",
			Value:   string(config.PersistenceTypeMemory),
			EnvVars: []string{config.EnvPersistenceType},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Badger journal directory",
			EnvVars: []string{config.EnvPersistenceDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis journal address (host:port)",
			EnvVars: []string{config.EnvRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis journal password",
			EnvVars: []string{config.EnvRedisPassword},
		},
		&cli.DurationFlag{
			Name:    "connect-timeout",
			Usage:   "Upper bound on establishing the remote signer session",
			Value:   config.DefaultConnectTimeout,
			EnvVars: []string{config.EnvConnectTimeout},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvVerbose},
		},
	}
}

func operationFlags(addressFlag string, defaultAmount string) []cli.Flag {
	amountUsage := "USDC amount"
	if defaultAmount == "" {
		amountUsage += " (required)"
	}
	return []cli.Flag{
		&cli.StringFlag{
			Name:  addressFlag,
			Usage: "Counterparty address (defaults to the vault address)",
		},
		&cli.StringFlag{
			Name:  "amount",
			Usage: amountUsage,
			Value: defaultAmount,
		},
	}
}

func parseVaultSignerConfig(c *cli.Context) (*config.VaultSignerConfig, error) {
	vaultAddress := c.String("vault-address")
	if !common.IsHexAddress(vaultAddress) {
		return nil, fmt.Errorf("invalid vault address %q", vaultAddress)
	}

	cfg := &config.VaultSignerConfig{
		Identity: config.ChainIdentity{
			ChainId:      config.ChainId(c.Uint64("chain-id")),
			VaultAddress: common.HexToAddress(vaultAddress),
		},
		SignerType: config.SignerType(c.String("signer-type")),
		Exchange: config.ExchangeConfig{
			ApiUrl:          c.String("exchange-url"),
			Mainnet:         c.Bool("mainnet"),
			DepositRelayUrl: c.String("deposit-relay-url"),
		},
		Persistence:    parsePersistenceConfig(c),
		ConnectTimeout: c.Duration("connect-timeout"),
		Verbose:        c.Bool("verbose"),
	}
	if cfg.Exchange.ApiUrl == "" {
		cfg.Exchange.ApiUrl = config.HyperliquidTestnetApiUrl
		if cfg.Exchange.Mainnet {
			cfg.Exchange.ApiUrl = config.HyperliquidMainnetApiUrl
		}
	}

	switch cfg.SignerType {
	case config.SignerTypeFordefi:
		fordefiCfg := &config.FordefiConfig{
			ApiUrl:        c.String("fordefi-api-url"),
			ApiUserToken:  c.String("fordefi-api-token"),
			VaultId:       c.String("fordefi-vault-id"),
			RpcUrl:        c.String("rpc-url"),
			PayloadSigner: config.PayloadSignerType(c.String("payload-signer")),
			KmsKeyId:      c.String("kms-key-id"),
			AwsRegion:     c.String("aws-region"),
		}
		if fordefiCfg.PayloadSigner == config.PayloadSignerTypePem {
			key, err := config.LoadPayloadSignKey(c.String("payload-key-path"))
			if err != nil {
				return nil, err
			}
			fordefiCfg.PayloadSignKey = key
		}
		cfg.Fordefi = fordefiCfg
	case config.SignerTypeWeb3Signer:
		cfg.Web3Signer = &config.RemoteSignerConfig{
			Url:         c.String("web3signer-url"),
			CACert:      c.String("web3signer-ca-cert"),
			Cert:        c.String("web3signer-cert"),
			Key:         c.String("web3signer-key"),
			FromAddress: vaultAddress,
		}
	}
	return cfg, nil
}

func parsePersistenceConfig(c *cli.Context) config.PersistenceConfig {
	return config.PersistenceConfig{
		Type:          config.PersistenceType(c.String("persistence")),
		DataPath:      c.String("data-path"),
		RedisAddress:  c.String("redis-address"),
		RedisPassword: c.String("redis-password"),
	}
}

func runWithdraw(c *cli.Context) error {
	return runOperation(c, "destination", (*executor.Executor).Withdraw)
}

func runSend(c *cli.Context) error {
	return runOperation(c, "destination", (*executor.Executor).Send)
}

func runDeposit(c *cli.Context) error {
	return runOperation(c, "from", (*executor.Executor).Deposit)
}

type operationFunc func(e *executor.Executor, ctx context.Context, req *executor.OperationRequest) (*executor.OperationResult, error)

func runOperation(c *cli.Context, addressFlag string, op operationFunc) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	address := c.String(addressFlag)
	if address == "" {
		address = rt.cfg.Identity.VaultAddress.Hex()
	}

	result, err := op(rt.executor, c.Context, &executor.OperationRequest{
		Destination: address,
		Amount:      c.String("amount"),
	})
	if err != nil {
		var opErr *executor.OperationError
		if errors.As(err, &opErr) {
			fmt.Fprintln(os.Stderr, opErr.Classified.DisplayMessage())
			return cli.Exit("", 1)
		}
		return err
	}
	return printJSON(result)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
