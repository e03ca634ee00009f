package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/vault-signer-go/internal/aws"
	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/Layr-Labs/vault-signer-go/pkg/logger"
	"github.com/Layr-Labs/vault-signer-go/pkg/payloadSigner"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "payloadKeyInfo",
		Usage: "Print the PEM public key of a KMS payload signing key for registration on the Fordefi API user",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "kms-key-id",
				Usage:    "AWS KMS key ID",
				EnvVars:  []string{config.EnvFordefiPayloadKmsKeyID},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region override",
				EnvVars: []string{config.EnvAwsRegion},
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

	awsCfg, err := aws.LoadAWSConfig(c.Context, c.String("aws-region"))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	caller, err := aws.GetCallerIdentity(c.Context, awsCfg)
	if err != nil {
		return fmt.Errorf("failed to get caller identity: %w", err)
	}
	fmt.Printf("AWS principal: %s\n", *caller.Arn)

	signer := payloadSigner.NewAwsKmsPayloadSigner(awsCfg, c.String("kms-key-id"), l)
	pub, err := signer.PublicKey(c.Context)
	if err != nil {
		return fmt.Errorf("failed to fetch public key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("failed to encode public key: %w", err)
	}
	return pem.Encode(os.Stdout, &pem.Block{Type: "PUBLIC KEY", Bytes: der})
}
