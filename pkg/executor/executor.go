package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/Layr-Labs/vault-signer-go/pkg/errorClassifier"
	"github.com/Layr-Labs/vault-signer-go/pkg/exchange"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence"
	"github.com/Layr-Labs/vault-signer-go/pkg/session"
	"github.com/Layr-Labs/vault-signer-go/pkg/signerAdapter"
	"github.com/Layr-Labs/vault-signer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultWithdrawAmount = "6"
	DefaultSendAmount     = "1"
)

var ErrInvalidRequest = errors.New("invalid operation request")

// Acquirer hands out the connected remote signer handle.
type Acquirer interface {
	Acquire(ctx context.Context) (*session.Handle, error)
}

var _ Acquirer = (*session.Session)(nil)

// ExchangeClient is the part of the exchange client the executor drives.
type ExchangeClient interface {
	Withdraw(ctx context.Context, destination string, amount string) (*exchange.Response, error)
	Send(ctx context.Context, destination string, amount string) (*exchange.Response, error)
	Deposit(ctx context.Context, from string, amount string) (*exchange.Response, error)
}

var _ ExchangeClient = (*exchange.Client)(nil)

// ExchangeClientFactory builds an exchange client that signs with wallet.
type ExchangeClientFactory func(wallet exchange.Wallet) (ExchangeClient, error)

type Config struct {
	Session           Acquirer
	Identity          config.ChainIdentity
	NewExchangeClient ExchangeClientFactory
	// Journal is optional; when set every attempted operation is recorded.
	Journal persistence.IOperationJournal
	Logger  *zap.Logger
}

// OperationRequest names the counterparty and amount of a fund movement. An empty Amount selects
// the operation's default where it has one.
type OperationRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount,omitempty"`
}

type OperationResult struct {
	Id          string             `json:"id"`
	Operation   types.Operation    `json:"operation"`
	Destination string             `json:"destination"`
	Amount      string             `json:"amount"`
	Response    *exchange.Response `json:"response"`
}

// OperationError carries the classified form of a failed operation and unwraps to the cause.
type OperationError struct {
	Id         string
	Operation  types.Operation
	Classified errorClassifier.ClassifiedError
	Err        error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Executor runs named fund movements end to end, one remote call per invocation, never retried.
type Executor struct {
	session           Acquirer
	identity          config.ChainIdentity
	newExchangeClient ExchangeClientFactory
	journal           persistence.IOperationJournal
	logger            *zap.Logger

	now func() time.Time
}

func NewExecutor(cfg *Config) (*Executor, error) {
	if cfg == nil {
		return nil, types.ErrConfigRequired
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if cfg.NewExchangeClient == nil {
		return nil, fmt.Errorf("exchange client factory is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrConfigRequired, err)
	}
	return &Executor{
		session:           cfg.Session,
		identity:          cfg.Identity,
		newExchangeClient: cfg.NewExchangeClient,
		journal:           cfg.Journal,
		logger:            cfg.Logger,
		now:               time.Now,
	}, nil
}

// Withdraw moves funds from the exchange to req.Destination. Amount defaults to "6".
func (e *Executor) Withdraw(ctx context.Context, req *OperationRequest) (*OperationResult, error) {
	return e.run(ctx, types.OperationWithdraw, req, DefaultWithdrawAmount, ExchangeClient.Withdraw)
}

// Send transfers funds inside the exchange ledger to req.Destination. Amount defaults to "1".
func (e *Executor) Send(ctx context.Context, req *OperationRequest) (*OperationResult, error) {
	return e.run(ctx, types.OperationSend, req, DefaultSendAmount, ExchangeClient.Send)
}

// Deposit moves funds into the exchange from req.Destination. Amount is required.
func (e *Executor) Deposit(ctx context.Context, req *OperationRequest) (*OperationResult, error) {
	return e.run(ctx, types.OperationDeposit, req, "", ExchangeClient.Deposit)
}

type remoteCall func(client ExchangeClient, ctx context.Context, destination string, amount string) (*exchange.Response, error)

func (e *Executor) run(ctx context.Context, op types.Operation, req *OperationRequest, defaultAmount string, call remoteCall) (*OperationResult, error) {
	if req == nil {
		return nil, e.fail(op, "", types.ErrConfigRequired)
	}

	amount := req.Amount
	if amount == "" {
		amount = defaultAmount
	}
	if err := validateRequest(req.Destination, amount); err != nil {
		return nil, e.fail(op, "", err)
	}

	handle, err := e.session.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, types.ErrConnectionFailure) {
			err = fmt.Errorf("%w: %w", types.ErrConnectionFailure, err)
		}
		return nil, e.fail(op, "", err)
	}

	record := &persistence.OperationRecord{
		Id:          uuid.New().String(),
		Operation:   op,
		Destination: req.Destination,
		Amount:      amount,
		Status:      persistence.OperationStatusPending,
		StartedAt:   e.now().UnixMilli(),
	}
	e.record(record)

	client, err := e.newExchangeClient(signerAdapter.New(handle, e.identity))
	if err != nil {
		return nil, e.finishFailed(record, fmt.Errorf("failed to create exchange client: %w", err))
	}

	e.logger.Sugar().Infow("Submitting operation",
		"id", record.Id,
		"operation", op.String(),
		"destination", req.Destination,
		"amount", amount,
	)
	resp, err := call(client, ctx, req.Destination, amount)
	if err != nil {
		return nil, e.finishFailed(record, err)
	}

	record.Status = persistence.OperationStatusSucceeded
	record.FinishedAt = e.now().UnixMilli()
	if resp != nil {
		record.Response = resp.Response
	}
	e.record(record)

	e.logger.Sugar().Infow("Operation succeeded",
		"id", record.Id,
		"operation", op.String(),
		"status", responseStatus(resp),
	)
	return &OperationResult{
		Id:          record.Id,
		Operation:   op,
		Destination: req.Destination,
		Amount:      amount,
		Response:    resp,
	}, nil
}

func validateRequest(destination, amount string) error {
	if !common.IsHexAddress(destination) {
		return fmt.Errorf("%w: destination %q is not a hex address", ErrInvalidRequest, destination)
	}
	if _, err := exchange.ParseAmount(amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func (e *Executor) finishFailed(record *persistence.OperationRecord, err error) error {
	opErr := e.fail(record.Operation, record.Id, err)
	record.Status = persistence.OperationStatusFailed
	record.ErrorKind = string(opErr.Classified.Kind)
	record.ErrorMessage = opErr.Classified.Message
	record.FinishedAt = e.now().UnixMilli()
	e.record(record)
	return opErr
}

func (e *Executor) fail(op types.Operation, id string, err error) *OperationError {
	classified := errorClassifier.Classify(err)
	e.logger.Sugar().Errorw(classified.DisplayMessage(),
		"id", id,
		"operation", op.String(),
		"kind", string(classified.Kind),
		"error", err,
	)
	return &OperationError{
		Id:         id,
		Operation:  op,
		Classified: classified,
		Err:        err,
	}
}

// record writes to the journal. Journal failures are logged and never fail the operation.
func (e *Executor) record(record *persistence.OperationRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordOperation(record); err != nil {
		e.logger.Sugar().Warnw("Failed to record operation", "id", record.Id, "error", err)
	}
}

func responseStatus(resp *exchange.Response) string {
	if resp == nil {
		return ""
	}
	return resp.Status
}
