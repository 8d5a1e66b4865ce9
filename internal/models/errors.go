package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionNotFound = errors.New("import session not found")
	ErrRowNotFound     = errors.New("import row not found")
	ErrLedgerNotFound  = errors.New("ledger not found")
)

// MissingFieldsError blocks a mapping save that leaves required canonical
// fields uncovered. Fields are listed in catalog declaration order.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("required fields not mapped: %s", strings.Join(e.Fields, ", "))
}

// StageError rejects an operation the session's current stage does not
// allow (e.g. processing before mapping is saved).
type StageError struct {
	Stage string
	Op    string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("cannot %s while session is in stage %q", e.Op, e.Stage)
}

// RowError attributes a failure inside a batch operation to one row.
// Batches collect these instead of aborting.
type RowError struct {
	RowNumber int    `json:"row_number"`
	Reason    string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
}

// SyncRejectedError means the external ledger system explicitly refused a
// voucher. Retrying without a data change is pointless, which is what
// separates it from a transient transport failure.
type SyncRejectedError struct {
	Reason string
}

func (e *SyncRejectedError) Error() string {
	return fmt.Sprintf("voucher rejected by ledger system: %s", e.Reason)
}

// IsSyncRejected reports whether err is a permanent rejection rather than
// a retryable transport failure.
func IsSyncRejected(err error) bool {
	var rejected *SyncRejectedError
	return errors.As(err, &rejected)
}
