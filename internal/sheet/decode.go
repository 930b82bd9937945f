// Package sheet decodes spreadsheet and pipe-delimited text exports into a Grid.
package sheet

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxPayloadBytes is the largest upload accepted by Decode (10 MiB)
const MaxPayloadBytes int64 = 10 << 20

// Format names a supported input format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatText Format = "text"
)

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	cfbMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// sniffLen bounds the prefix inspected for binary content
const sniffLen = 8 << 10

// DetectFormat picks a decoder from the payload signature, then the file
// extension. Payloads with an unknown extension are read as text when they
// look like a pipe-delimited export.
func DetectFormat(filename string, payload []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(payload, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(payload, cfbMagic):
		return FormatXLS, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".txt", ".dat", ".log", "":
		return FormatText, nil
	}
	if looksLikePipeText(payload) {
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
}

// looksLikePipeText reports a payload with no NUL byte in its prefix and at
// least one '|' separator
func looksLikePipeText(payload []byte) bool {
	sniff := payload[:min(len(payload), sniffLen)]
	return bytes.IndexByte(sniff, 0) < 0 && bytes.IndexByte(payload, '|') >= 0
}

// ReadPayload reads at most limit bytes from r. A reader holding more than
// limit bytes fails with ErrPayloadTooLarge without buffering the excess.
func ReadPayload(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = MaxPayloadBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}

// Decode turns payload into a Grid using the decoder matching its format.
// Payloads above limit are rejected before any decoding starts.
func Decode(filename string, payload []byte, limit int64) (Grid, Format, error) {
	if limit <= 0 {
		limit = MaxPayloadBytes
	}
	if int64(len(payload)) > limit {
		return nil, "", ErrPayloadTooLarge
	}

	format, err := DetectFormat(filename, payload)
	if err != nil {
		return nil, "", &DecodeError{Format: Format(strings.TrimPrefix(filepath.Ext(filename), ".")), Err: err}
	}

	var grid Grid
	switch format {
	case FormatXLSX:
		grid, err = decodeWorkbook(payload, unzipLimit(limit))
	case FormatXLS:
		grid, err = DecodeLegacyWorkbook(payload)
	default:
		grid, err = DecodePipeText(payload)
	}
	if err != nil {
		return nil, format, err
	}
	return grid, format, nil
}
