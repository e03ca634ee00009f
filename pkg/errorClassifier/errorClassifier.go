package errorClassifier

import (
	"errors"
	"strings"

	"github.com/Layr-Labs/vault-signer-go/pkg/types"
)

type Kind string

const (
	KindConfigRequired      Kind = "ConfigRequired"
	KindInsufficientBalance Kind = "InsufficientBalance"
	KindConnectionFailure   Kind = "ConnectionFailure"
	KindUnclassified        Kind = "Unclassified"
)

// Markers matched (case-insensitively) against error text. The remote signer and
// the exchange only report failures as messages, never as codes.
var (
	InsufficientBalanceMarkers = []string{"insufficient balance", "insufficient funds"}
	ConnectionFailureMarkers   = []string{"provider", "connect"}
)

// ClassifiedError is an advisory category for a failure. Message always carries
// the original error text.
type ClassifiedError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (c ClassifiedError) String() string {
	return string(c.Kind) + ": " + c.Message
}

// DisplayMessage is the line shown to the operator for this failure.
func (c ClassifiedError) DisplayMessage() string {
	switch c.Kind {
	case KindConfigRequired:
		return "ERROR: Config required"
	case KindInsufficientBalance:
		return "ERROR: Not enough funds for the operation"
	case KindConnectionFailure:
		return "ERROR: Provider connection issue"
	default:
		return "ERROR: " + c.Message
	}
}

// Classify maps err onto the failure taxonomy. It is total: a nil error is Unclassified
// with an empty message.
func Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{Kind: KindUnclassified}
	}
	switch {
	case errors.Is(err, types.ErrConfigRequired):
		return ClassifiedError{Kind: KindConfigRequired, Message: err.Error()}
	case errors.Is(err, types.ErrConnectionFailure):
		return ClassifiedError{Kind: KindConnectionFailure, Message: err.Error()}
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage classifies raw error text.
func ClassifyMessage(msg string) ClassifiedError {
	lower := strings.ToLower(msg)
	if containsAny(lower, InsufficientBalanceMarkers) {
		return ClassifiedError{Kind: KindInsufficientBalance, Message: msg}
	}
	if containsAny(lower, ConnectionFailureMarkers) {
		return ClassifiedError{Kind: KindConnectionFailure, Message: msg}
	}
	return ClassifiedError{Kind: KindUnclassified, Message: msg}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
