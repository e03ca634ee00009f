package payloadSigner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
)

// IPayloadSigner signs Fordefi API request payloads with the API user's
// payload signing key (ECDSA P-256, ASN.1 DER signatures).
type IPayloadSigner interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// BuildSigningPayload returns the message Fordefi expects to be signed for a request:
// "<path>|<timestamp>|<body>".
func BuildSigningPayload(path string, timestampMs int64, body []byte) []byte {
	payload := make([]byte, 0, len(path)+len(body)+16)
	payload = append(payload, path...)
	payload = append(payload, '|')
	payload = strconv.AppendInt(payload, timestampMs, 10)
	payload = append(payload, '|')
	payload = append(payload, body...)
	return payload
}

func digest(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	return sum[:]
}

func errEmptyPayload() error {
	return fmt.Errorf("payload cannot be empty")
}
