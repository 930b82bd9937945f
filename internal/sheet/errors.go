package sheet

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge   = errors.New("payload exceeds maximum size")
	ErrNoWorksheet       = errors.New("workbook has no worksheet")
	ErrEmptyWorksheet    = errors.New("worksheet is empty")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// DecodeError reports a payload that could not be turned into a Grid
type DecodeError struct {
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
