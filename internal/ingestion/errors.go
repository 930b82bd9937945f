package ingestion

import (
	"errors"
	"fmt"
)

var (
	ErrHeaderNotFound = errors.New("header row not found")
	ErrMissingColumn  = errors.New("required column missing")
	ErrEmptyDataset   = errors.New("no usable rows")
)

// HeaderNotFoundError reports that no row within the scan window carried
// the anchor token
type HeaderNotFoundError struct {
	Anchor      string
	RowsScanned int
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("header row not found: no cell containing %q in the first %d rows", e.Anchor, e.RowsScanned)
}

func (e *HeaderNotFoundError) Unwrap() error {
	return ErrHeaderNotFound
}

// MissingColumnError names a required column absent from the header row
type MissingColumnError struct {
	Field      Field
	Expected   []string
	HeaderRow  int
	Suggestion string // closest header label, may be empty
}

func (e *MissingColumnError) Error() string {
	msg := fmt.Sprintf("required column %q not found in header row %d (expected a label containing %q)",
		e.Field, e.HeaderRow+1, e.Expected)
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; closest header is %q", e.Suggestion)
	}
	return msg
}

func (e *MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}

// EmptyDatasetError reports a structurally valid file that produced no
// records after the row skip rules
type EmptyDatasetError struct {
	RowsRead    int
	RowsSkipped int
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("file has the expected columns but no usable rows (%d read, %d skipped)", e.RowsRead, e.RowsSkipped)
}

func (e *EmptyDatasetError) Unwrap() error {
	return ErrEmptyDataset
}
