package sheet

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// PreambleLines is the number of report-title lines that precede the
// table in a pipe-delimited export
const PreambleLines = 7

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodePipeText reads a pipe-delimited text export. The preamble, comment
// lines (leading '#'), blank lines and the separator line under the header
// are discarded; every other line becomes one row.
func DecodePipeText(payload []byte) (Grid, error) {
	data, err := toUTF8(payload)
	if err != nil {
		return nil, &DecodeError{Format: FormatText, Err: err}
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), max(len(data)+1, bufio.MaxScanTokenSize))

	var grid Grid
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= PreambleLines {
			continue
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || isSeparatorLine(line) {
			continue
		}

		grid = append(grid, splitPipeLine(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, &DecodeError{Format: FormatText, Err: fmt.Errorf("scan line %d: %w", lineNum+1, err)}
	}
	if len(grid) == 0 {
		return nil, &DecodeError{Format: FormatText, Err: ErrEmptyWorksheet}
	}

	return grid, nil
}

// toUTF8 strips a UTF-8 BOM and transcodes Latin-1 input
func toUTF8(payload []byte) ([]byte, error) {
	data := bytes.TrimPrefix(payload, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	converted, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("transcode latin-1: %w", err)
	}
	return converted, nil
}

// isSeparatorLine matches rules such as "----|-----" or "+====+====+"
func isSeparatorLine(line string) bool {
	hasRule := false
	for _, r := range line {
		switch r {
		case '-', '=':
			hasRule = true
		case '|', '+', ' ', '\t':
		default:
			return false
		}
	}
	return hasRule
}

func splitPipeLine(line string) []Cell {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")

	parts := strings.Split(line, "|")
	cells := make([]Cell, len(parts))
	for i, part := range parts {
		cells[i] = ParseCell(strings.TrimSpace(part))
	}
	return cells
}
