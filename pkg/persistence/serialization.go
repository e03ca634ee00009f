package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalOperationRecord serializes an OperationRecord to JSON bytes.
func MarshalOperationRecord(record *OperationRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil OperationRecord")
	}
	if record.Id == "" {
		return nil, fmt.Errorf("cannot marshal OperationRecord without an id")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OperationRecord to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalOperationRecord deserializes an OperationRecord from JSON bytes.
func UnmarshalOperationRecord(data []byte) (*OperationRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record OperationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to OperationRecord: %w", err)
	}
	return &record, nil
}
