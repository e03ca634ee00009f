package exchange

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	StatusOk  = "ok"
	StatusErr = "err"
)

// Response is the envelope Hyperliquid wraps every exchange reply in.
type Response struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// ErrorMessage returns the exchange's message for a rejected action.
func (r *Response) ErrorMessage() string {
	var msg string
	if err := json.Unmarshal(r.Response, &msg); err == nil {
		return msg
	}
	if len(r.Response) == 0 {
		return fmt.Sprintf("unexpected status %q", r.Status)
	}
	return string(r.Response)
}

// Error is a rejection reported by the exchange. Its message is the exchange's text verbatim.
type Error struct {
	Action  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Action, e.Message)
}

// Signature is the r/s/v form the exchange expects.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

func splitSignature(sig []byte) (Signature, error) {
	if len(sig) != 65 {
		return Signature{}, fmt.Errorf("expected a 65 byte signature, got %d bytes", len(sig))
	}
	v := sig[64]
	if v < 27 {
		v += 27
	}
	return Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: v,
	}, nil
}

func parseHexChainId(chainId string) (*big.Int, error) {
	if !strings.HasPrefix(chainId, "0x") {
		return nil, fmt.Errorf("signature chain id %q must be 0x prefixed hex", chainId)
	}
	v, err := hexutil.DecodeBig(chainId)
	if err != nil {
		return nil, fmt.Errorf("invalid signature chain id %q: %w", chainId, err)
	}
	return v, nil
}

// FormatChainId renders a chain id the way the exchange expects it in signatureChainId.
func FormatChainId(chainId uint64) string {
	return hexutil.EncodeUint64(chainId)
}

// decimalAmount is the only amount form the exchange accepts: digits with an optional fraction.
var decimalAmount = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount parses a positive plain decimal amount such as "6" or "12.5". Signs, exponents,
// fractions like "1/2" and hex are rejected.
func ParseAmount(amount string) (*big.Rat, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount is required")
	}
	if !decimalAmount.MatchString(amount) {
		return nil, fmt.Errorf("amount %q is not a plain decimal", amount)
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", amount)
	}
	return r, nil
}
