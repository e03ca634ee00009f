package main

import (
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/Layr-Labs/vault-signer-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/Layr-Labs/vault-signer-go/pkg/logger"
	"github.com/Layr-Labs/vault-signer-go/pkg/signerAdapter"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "testWeb3SignerTypedData",
		Usage: "Sign a sample Hyperliquid withdrawal through Web3Signer and check who signed it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "web3signer-url",
				Usage:   "Web3Signer base URL",
				Value:   "http://localhost:9100",
				EnvVars: []string{config.EnvWeb3SignerUrl},
			},
			&cli.StringFlag{
				Name:    "address",
				Usage:   "Account held by Web3Signer (defaults to the first account it reports)",
				EnvVars: []string{config.EnvVaultAddress},
			},
			&cli.Uint64Flag{
				Name:    "chain-id",
				Usage:   "Chain ID to scope the signature to",
				Value:   uint64(config.ChainId_Anvil),
				EnvVars: []string{config.EnvVaultChainID},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	ctx := c.Context
	chainId := c.Uint64("chain-id")

	client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(&config.RemoteSignerConfig{
		Url: c.String("web3signer-url"),
	}, l)
	if err != nil {
		return fmt.Errorf("failed to create Web3Signer client: %w", err)
	}

	address := c.String("address")
	if address == "" {
		accounts, err := client.EthAccounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list Web3Signer accounts: %w", err)
		}
		if len(accounts) == 0 {
			return fmt.Errorf("web3signer holds no accounts")
		}
		address = accounts[0]
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}

	backend := web3signer.NewBackend(client, common.HexToAddress(address), l)
	remoteChainId, err := backend.Handshake(ctx)
	if err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}

	identity := config.ChainIdentity{ChainId: config.ChainId(chainId), VaultAddress: common.HexToAddress(address)}
	adapter := signerAdapter.New(backend, identity)

	domain := apitypes.TypedDataDomain{
		Name:              "HyperliquidSignTransaction",
		Version:           "1",
		ChainId:           (*math.HexOrDecimal256)(big.NewInt(0x66eee)),
		VerifyingContract: "0x0000000000000000000000000000000000000000",
	}
	types := apitypes.Types{
		"HyperliquidTransaction:Withdraw": {
			{Name: "hyperliquidChain", Type: "string"},
			{Name: "destination", Type: "string"},
			{Name: "amount", Type: "string"},
			{Name: "time", Type: "uint64"},
		},
	}
	message := apitypes.TypedDataMessage{
		"hyperliquidChain": "Testnet",
		"destination":      address,
		"amount":           "1",
		"time":             big.NewInt(1700000000000),
	}

	sig, err := adapter.SignTypedData(ctx, domain, types, message)
	if err != nil {
		return fmt.Errorf("failed to sign typed data: %w", err)
	}

	scoped := domain
	scoped.ChainId = (*math.HexOrDecimal256)(new(big.Int).SetUint64(chainId))
	hash, _, err := apitypes.TypedDataAndHash(apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"HyperliquidTransaction:Withdraw": types["HyperliquidTransaction:Withdraw"],
		},
		PrimaryType: "HyperliquidTransaction:Withdraw",
		Domain:      scoped,
		Message:     message,
	})
	if err != nil {
		return fmt.Errorf("failed to hash typed data: %w", err)
	}

	recoverable := common.CopyBytes(sig)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, recoverable)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", err)
	}

	fmt.Printf("Remote chain id: %s\n", remoteChainId)
	fmt.Printf("Signature:       %s\n", common.Bytes2Hex(sig))
	fmt.Printf("Recovered:       %s\n", crypto.PubkeyToAddress(*pub).Hex())
	if crypto.PubkeyToAddress(*pub) == identity.VaultAddress {
		fmt.Println("Signer matches!")
	} else {
		fmt.Println("Signer does not match!")
	}
	return nil
}
