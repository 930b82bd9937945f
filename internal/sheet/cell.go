package sheet

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Cell holds
type Kind uint8

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return "empty"
	}
}

// Cell is a single decoded value: Empty, Text or Number.
// The zero value is Empty.
type Cell struct {
	kind Kind
	text string
	num  float64
}

// Empty returns an empty cell
func Empty() Cell { return Cell{} }

// Text returns a text cell. An empty string yields an Empty cell.
func Text(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{kind: KindText, text: s}
}

// Number returns a numeric cell. NaN and infinities yield an Empty cell.
func Number(v float64) Cell {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Cell{}
	}
	return Cell{kind: KindNumber, num: v}
}

// Kind reports the variant held by the cell
func (c Cell) Kind() Kind { return c.kind }

// IsEmpty reports whether the cell holds no value
func (c Cell) IsEmpty() bool { return c.kind == KindEmpty }

// AsText returns the text value when the cell is Text
func (c Cell) AsText() (string, bool) {
	return c.text, c.kind == KindText
}

// AsNumber returns the numeric value when the cell is Number
func (c Cell) AsNumber() (float64, bool) {
	return c.num, c.kind == KindNumber
}

// String coerces the cell to its textual form. Numbers use the shortest
// decimal representation without exponent.
func (c Cell) String() string {
	switch c.kind {
	case KindText:
		return c.text
	case KindNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	default:
		return ""
	}
}

// ParseCell classifies a raw string read from a workbook or text export.
// A value becomes a Number only when its canonical decimal form is the
// trimmed input itself, so identifiers such as "0012" or "1e3" stay Text.
func ParseCell(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Empty()
	}
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if strconv.FormatFloat(v, 'f', -1, 64) == trimmed {
			return Number(v)
		}
	}
	return Text(raw)
}

// Grid is a decoded worksheet: rows of cells. Rows may be shorter than
// their neighbours.
type Grid [][]Cell

// At returns the cell at row, col or Empty when out of range
func (g Grid) At(row, col int) Cell {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return Empty()
	}
	return g[row][col]
}

// FromStrings builds a Grid from raw string rows
func FromStrings(rows [][]string) Grid {
	grid := make(Grid, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, raw := range row {
			cells[j] = ParseCell(raw)
		}
		grid[i] = cells
	}
	return grid
}
