// Package errs holds the error taxonomy shared by the training, serving and
// feedback paths. Callers match these with errors.As.
package errs

import (
	"fmt"
	"strings"
)

// SchemaError reports required columns that are absent from a frame, or
// present but holding values a numeric feature cannot use.
type SchemaError struct {
	Missing    []string
	NonNumeric []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required columns [%s]", strings.Join(e.Missing, ", ")))
	}
	if len(e.NonNumeric) > 0 {
		parts = append(parts, fmt.Sprintf("non-numeric values in columns [%s]", strings.Join(e.NonNumeric, ", ")))
	}
	return "schema mismatch: " + strings.Join(parts, "; ")
}

// InsufficientDataError is returned when a training set is empty or carries
// no variation to learn from.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return "insufficient training data: " + e.Reason
}

// ArtifactCorruptError is returned when a persisted model bundle cannot be
// used, typically because its scorer or scaler is missing.
type ArtifactCorruptError struct {
	Path   string
	Reason string
}

func (e *ArtifactCorruptError) Error() string {
	return fmt.Sprintf("artifact %s is corrupt: %s", e.Path, e.Reason)
}

// LedgerCorruptError is returned when the trust ledger exists but does not
// decode. The file is left untouched.
type LedgerCorruptError struct {
	Path string
	Err  error
}

func (e *LedgerCorruptError) Error() string {
	return fmt.Sprintf("trust ledger %s is corrupt: %v", e.Path, e.Err)
}

func (e *LedgerCorruptError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed write of the trust ledger or a model
// artifact. It is never retried internally.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
