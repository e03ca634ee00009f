package persistence

import (
	"encoding/json"
	"sort"

	"github.com/Layr-Labs/vault-signer-go/pkg/types"
)

type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusSucceeded OperationStatus = "succeeded"
	OperationStatusFailed    OperationStatus = "failed"
)

// OperationRecord is one journal entry. A record is written as pending before the remote call
// and rewritten with its outcome afterwards.
type OperationRecord struct {
	Id          string          `json:"id"`
	Operation   types.Operation `json:"operation"`
	Destination string          `json:"destination"`
	Amount      string          `json:"amount"`
	Status      OperationStatus `json:"status"`

	// ErrorKind is the classifier's verdict for failed operations.
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Response is the exchange's reply body for successful operations.
	Response json.RawMessage `json:"response,omitempty"`

	// StartedAt and FinishedAt are unix milliseconds.
	StartedAt  int64 `json:"startedAt"`
	FinishedAt int64 `json:"finishedAt,omitempty"`
}

// Clone returns a deep copy so stored records cannot be mutated by callers.
func (r *OperationRecord) Clone() *OperationRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Response != nil {
		out.Response = append(json.RawMessage{}, r.Response...)
	}
	return &out
}

// SortOperations orders records by StartedAt, then Id.
func SortOperations(records []*OperationRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].StartedAt != records[j].StartedAt {
			return records[i].StartedAt < records[j].StartedAt
		}
		return records[i].Id < records[j].Id
	})
}
