package payloadSigner

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KmsApi is the subset of the AWS KMS client the payload signer uses.
type KmsApi interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// AwsKmsPayloadSigner keeps the Fordefi payload key inside AWS KMS (key spec ECC_NIST_P256).
type AwsKmsPayloadSigner struct {
	kmsClient KmsApi
	keyId     string
	logger    *zap.Logger
}

func NewAwsKmsPayloadSigner(awsCfg aws.Config, keyId string, logger *zap.Logger) *AwsKmsPayloadSigner {
	return NewAwsKmsPayloadSignerWithClient(kms.NewFromConfig(awsCfg), keyId, logger)
}

func NewAwsKmsPayloadSignerWithClient(client KmsApi, keyId string, logger *zap.Logger) *AwsKmsPayloadSigner {
	return &AwsKmsPayloadSigner{
		kmsClient: client,
		keyId:     keyId,
		logger:    logger,
	}
}

func (a *AwsKmsPayloadSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errEmptyPayload()
	}

	out, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          digest(payload),
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign payload with KMS key %s", a.keyId)
	}
	a.logger.Debug("Signed API payload with KMS", zap.String("keyId", a.keyId))

	// KMS already returns an ASN.1 DER encoded ECDSA signature.
	return out.Signature, nil
}

// PublicKey fetches the verifying key from KMS.
func (a *AwsKmsPayloadSigner) PublicKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	out, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(a.keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for KMS key %s", a.keyId)
	}
	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse KMS public key")
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("KMS key %s is not an ECDSA key", a.keyId)
	}
	return ecdsaPub, nil
}
