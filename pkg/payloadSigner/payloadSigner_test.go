package payloadSigner

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func generatePem(t *testing.T, curve elliptic.Curve) ([]byte, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), key
}

func Test_BuildSigningPayload(t *testing.T) {
	payload := BuildSigningPayload("/api/v1/transactions", 1700000000000, []byte(`{"a":1}`))
	assert.Equal(t, `/api/v1/transactions|1700000000000|{"a":1}`, string(payload))
}

func Test_PemPayloadSigner(t *testing.T) {
	pemData, key := generatePem(t, elliptic.P256())

	signer, err := NewPemPayloadSigner(pemData)
	require.NoError(t, err)
	assert.True(t, signer.PublicKey().Equal(&key.PublicKey))

	payload := BuildSigningPayload("/api/v1/transactions", 1, []byte("{}"))
	sig, err := signer.Sign(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(&key.PublicKey, digest(payload), sig))

	_, err = signer.Sign(context.Background(), nil)
	require.Error(t, err)
}

func Test_PemPayloadSignerRejectsBadKeys(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := NewPemPayloadSigner(nil)
		require.Error(t, err)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := NewPemPayloadSigner([]byte("not a pem"))
		require.Error(t, err)
	})
	t.Run("wrong curve", func(t *testing.T) {
		pemData, _ := generatePem(t, elliptic.P384())
		_, err := NewPemPayloadSigner(pemData)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "P-256")
	})
}

type fakeKms struct {
	key     *ecdsa.PrivateKey
	signErr error
	lastIn  *kms.SignInput
}

func (f *fakeKms) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.lastIn = params
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := ecdsa.SignASN1(rand.Reader, f.key, params.Message)
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{Signature: sig, KeyId: params.KeyId}, nil
}

func (f *fakeKms) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	der, err := x509.MarshalPKIXPublicKey(&f.key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{PublicKey: der, KeyId: params.KeyId}, nil
}

func Test_AwsKmsPayloadSigner(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	fake := &fakeKms{key: key}

	signer := NewAwsKmsPayloadSignerWithClient(fake, "alias/fordefi-payload", zaptest.NewLogger(t))

	payload := []byte("/api/v1/transactions|1|{}")
	sig, err := signer.Sign(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, kmstypes.MessageTypeDigest, fake.lastIn.MessageType)
	assert.Equal(t, kmstypes.SigningAlgorithmSpecEcdsaSha256, fake.lastIn.SigningAlgorithm)
	assert.Equal(t, "alias/fordefi-payload", *fake.lastIn.KeyId)

	pub, err := signer.PublicKey(context.Background())
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(pub, digest(payload), sig))
}

func Test_AwsKmsPayloadSignerError(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer := NewAwsKmsPayloadSignerWithClient(&fakeKms{key: key, signErr: errors.New("AccessDenied")}, "key-1", zaptest.NewLogger(t))

	_, err = signer.Sign(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.Contains(t, err.Error(), "key-1")
}
