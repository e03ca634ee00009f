package payloadSigner

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// PemPayloadSigner signs with a P-256 key held in process memory, loaded from PEM.
type PemPayloadSigner struct {
	privateKey *ecdsa.PrivateKey
}

func NewPemPayloadSigner(pemData []byte) (*PemPayloadSigner, error) {
	if len(pemData) == 0 {
		return nil, fmt.Errorf("pem data cannot be empty")
	}

	key, err := jwk.ParseKey(pemData, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse payload signing key: %w", err)
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to export payload signing key: %w", err)
	}
	privateKey, ok := raw.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("payload signing key must be an ECDSA private key, got %T", raw)
	}
	if privateKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("payload signing key must use the P-256 curve, got %s", privateKey.Curve.Params().Name)
	}

	return &PemPayloadSigner{privateKey: privateKey}, nil
}

func (p *PemPayloadSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errEmptyPayload()
	}
	sig, err := ecdsa.SignASN1(rand.Reader, p.privateKey, digest(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	return sig, nil
}

// PublicKey returns the verifying half of the payload key.
func (p *PemPayloadSigner) PublicKey() *ecdsa.PublicKey {
	return &p.privateKey.PublicKey
}
