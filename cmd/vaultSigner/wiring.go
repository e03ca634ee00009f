package main

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/vault-signer-go/internal/aws"
	"github.com/Layr-Labs/vault-signer-go/pkg/clients/fordefi"
	"github.com/Layr-Labs/vault-signer-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/Layr-Labs/vault-signer-go/pkg/exchange"
	"github.com/Layr-Labs/vault-signer-go/pkg/executor"
	"github.com/Layr-Labs/vault-signer-go/pkg/logger"
	"github.com/Layr-Labs/vault-signer-go/pkg/payloadSigner"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence/badger"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence/memory"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence/redis"
	"github.com/Layr-Labs/vault-signer-go/pkg/provider"
	"github.com/Layr-Labs/vault-signer-go/pkg/session"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// runtime holds everything a command needs for one process lifetime.
type runtime struct {
	cfg       *config.VaultSignerConfig
	logger    *zap.Logger
	ethClient *ethclient.Client
	session   *session.Session
	journal   persistence.IOperationJournal
	executor  *executor.Executor
}

func newRuntime(c *cli.Context) (*runtime, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := parseVaultSignerConfig(c)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: l}

	journal, err := openJournal(&cfg.Persistence, l)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.journal = journal

	if rpcUrl := c.String("rpc-url"); rpcUrl != "" {
		rt.ethClient, err = ethclient.DialContext(c.Context, rpcUrl)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to dial rpc %s: %w", rpcUrl, err)
		}
	}

	rt.session, err = session.New(&session.Config{
		Identity:       cfg.Identity,
		Dial:           newDialer(cfg, rt.ethClient, l),
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         l,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	rt.executor, err = executor.NewExecutor(&executor.Config{
		Session:           rt.session,
		Identity:          cfg.Identity,
		NewExchangeClient: newExchangeClientFactory(cfg, rt.ethClient, l),
		Journal:           rt.journal,
		Logger:            l,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	l.Sugar().Debugw("Vault signer configured",
		"chainId", uint64(cfg.Identity.ChainId),
		"vault", cfg.Identity.VaultAddress.Hex(),
		"signer", string(cfg.SignerType),
		"exchange", cfg.Exchange.ApiUrl,
		"persistence", string(cfg.Persistence.Type),
	)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.session != nil {
		if err := rt.session.Close(); err != nil {
			rt.logger.Sugar().Warnw("Failed to close session", "error", err)
		}
	}
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Sugar().Warnw("Failed to close operation journal", "error", err)
		}
	}
	if rt.ethClient != nil {
		rt.ethClient.Close()
	}
	_ = rt.logger.Sync()
}

// openJournal opens the configured journal and refuses one that fails its health check.
func openJournal(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IOperationJournal, error) {
	journal, err := newJournal(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open operation journal: %w", err)
	}
	if err := journal.HealthCheck(); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("operation journal is unhealthy: %w", err)
	}
	return journal, nil
}

func newJournal(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IOperationJournal, error) {
	switch cfg.Type {
	case config.PersistenceTypeBadger:
		journal, err := badger.NewBadgerJournal(cfg.DataPath, l)
		if err != nil {
			return nil, err
		}
		return journal, nil
	case config.PersistenceTypeRedis:
		journal, err := redis.NewRedisJournal(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, l)
		if err != nil {
			return nil, err
		}
		return journal, nil
	default:
		return memory.NewMemoryJournal(l), nil
	}
}

// newDialer returns a session dialer that builds the configured remote signing backend behind a provider.
func newDialer(cfg *config.VaultSignerConfig, ethClient *ethclient.Client, l *zap.Logger) session.Dialer {
	return func(ctx context.Context, identity config.ChainIdentity) (session.Transport, error) {
		backend, err := newBackend(ctx, cfg, identity, ethClient, l)
		if err != nil {
			return nil, err
		}
		p, err := provider.NewProvider(&provider.Config{
			Backend: backend,
			Logger:  l,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func newBackend(ctx context.Context, cfg *config.VaultSignerConfig, identity config.ChainIdentity, ethClient *ethclient.Client, l *zap.Logger) (provider.Backend, error) {
	switch cfg.SignerType {
	case config.SignerTypeWeb3Signer:
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(cfg.Web3Signer, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create web3signer client: %w", err)
		}
		return web3signer.NewBackend(client, identity.VaultAddress, l), nil
	case config.SignerTypeFordefi:
		if ethClient == nil {
			return nil, fmt.Errorf("fordefi backend requires an rpc url")
		}
		signer, err := newPayloadSigner(ctx, cfg.Fordefi, l)
		if err != nil {
			return nil, err
		}
		client, err := fordefi.NewClient(&fordefi.ClientConfig{
			ApiUrl:        cfg.Fordefi.ApiUrl,
			ApiUserToken:  cfg.Fordefi.ApiUserToken,
			PayloadSigner: signer,
			Logger:        l,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create fordefi client: %w", err)
		}
		backend, err := fordefi.NewBackend(&fordefi.BackendConfig{
			Client:       client,
			ChainReader:  ethClient,
			VaultAddress: identity.VaultAddress,
			VaultId:      cfg.Fordefi.VaultId,
			Logger:       l,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported signer type %q", cfg.SignerType)
	}
}

func newPayloadSigner(ctx context.Context, cfg *config.FordefiConfig, l *zap.Logger) (payloadSigner.IPayloadSigner, error) {
	switch cfg.PayloadSigner {
	case config.PayloadSignerTypeAwsKms:
		awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AwsRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		if caller, err := aws.GetCallerIdentity(ctx, awsCfg); err != nil {
			l.Sugar().Warnw("Failed to resolve AWS caller identity", "error", err)
		} else {
			l.Sugar().Debugw("Signing API payloads with KMS", "keyId", cfg.KmsKeyId, "principal", caller.Arn)
		}
		return payloadSigner.NewAwsKmsPayloadSigner(awsCfg, cfg.KmsKeyId, l), nil
	default:
		signer, err := payloadSigner.NewPemPayloadSigner(cfg.PayloadSignKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load payload signing key: %w", err)
		}
		return signer, nil
	}
}

func newExchangeClientFactory(cfg *config.VaultSignerConfig, ethClient *ethclient.Client, l *zap.Logger) executor.ExchangeClientFactory {
	return func(wallet exchange.Wallet) (executor.ExchangeClient, error) {
		permit := &exchange.PermitConfig{
			ChainId:  cfg.Identity.ChainId.BigInt(),
			RelayUrl: cfg.Exchange.DepositRelayUrl,
		}
		if ethClient != nil {
			nonceReader, err := exchange.NewContractNonceReader(ethClient)
			if err != nil {
				return nil, err
			}
			permit.NonceReader = nonceReader
		}
		client, err := exchange.NewClient(&exchange.ClientConfig{
			Wallet:           wallet,
			BaseUrl:          cfg.Exchange.ApiUrl,
			IsMainnet:        cfg.Exchange.Mainnet,
			SignatureChainId: exchange.FormatChainId(uint64(cfg.Identity.ChainId)),
			Permit:           permit,
			Logger:           l,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
