package types

import "errors"

// Operation names a fund movement the vault can authorize on the exchange.
type Operation string

const (
	OperationWithdraw Operation = "withdraw"
	OperationSend     Operation = "send"
	OperationDeposit  Operation = "deposit"
)

func (o Operation) String() string {
	return string(o)
}

var (
	// ErrConfigRequired is returned when an operation is invoked without its request.
	ErrConfigRequired = errors.New("config required")

	// ErrConnectionFailure is returned when the remote signer never reached the ready state.
	ErrConnectionFailure = errors.New("provider connection failure")
)
