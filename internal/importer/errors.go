package importer

import (
	"errors"
	"fmt"
)

// Structural failures. Each is reported wrapped in a *FormatError.
var (
	ErrTooFewLines      = errors.New("too few lines")
	ErrHeaderUnresolved = errors.New("header unresolved")
	ErrEncoding         = errors.New("encoding error")
	ErrTooManyRows      = errors.New("too many rows")
)

// ErrFileTooLarge is returned by ReadLimited when the input exceeds its limit.
var ErrFileTooLarge = errors.New("file too large")

// FormatError rejects a whole import before any entity is built.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("format error: %v", e.Err)
	}
	return fmt.Sprintf("format error: %v: %s", e.Err, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err rejects the file as a whole.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// SkipReason explains why a data row contributed nothing.
type SkipReason string

const (
	SkipMissingIdentity    SkipReason = "missing identity"
	SkipMissingAccountCode SkipReason = "missing account code"
)

// SkippedRow is a non-fatal diagnostic for one excluded row.
type SkippedRow struct {
	Line   int        `json:"line"`
	Reason SkipReason `json:"reason"`
	Data   []string   `json:"data,omitempty"`
}
