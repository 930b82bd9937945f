package ingestion

import (
	"strings"

	"github.com/dennisdiepolder/monti/callreport/internal/sheet"
	"github.com/schollz/closestmatch"
)

// HeaderScanRows bounds how many leading rows are searched for the header
const HeaderScanRows = 10

// HeaderAnchor is the token that identifies the header row
const HeaderAnchor = "fila"

// Field is a logical column of a call export
type Field string

const (
	FieldQueue          Field = "queue"
	FieldAnsweredCount  Field = "answeredCount"
	FieldAbandonedCount Field = "abandonedCount"
	FieldStatus         Field = "status"
	FieldQuantity       Field = "quantity"
	FieldOperator       Field = "operator"
	FieldPhone          Field = "phone"
	FieldState          Field = "state"
	FieldPeriod         Field = "period"
	FieldStartedAt      Field = "startedAt"
	FieldAnsweredAt     Field = "answeredAt"
	FieldEndedAt        Field = "endedAt"
	FieldDuration       Field = "duration"
)

// Layout tells the normalizer how to read data rows
type Layout string

const (
	// LayoutSummary rows carry pre-aggregated answered/abandoned counts
	LayoutSummary Layout = "summary"
	// LayoutPerCall rows describe a single call with a status column
	LayoutPerCall Layout = "per_call"
)

type columnRule struct {
	field      Field
	substrings []string
}

// columnRules is evaluated in order; within a rule substrings are tried in
// order and the first header cell containing one wins
var columnRules = []columnRule{
	{FieldQueue, []string{"fila"}},
	{FieldAnsweredCount, []string{"atendida"}},
	{FieldAbandonedCount, []string{"abandonada"}},
	{FieldStatus, []string{"status", "situação", "situacao", "resultado"}},
	{FieldQuantity, []string{"quantidade", "qtd"}},
	{FieldOperator, []string{"operador", "agente", "atendente"}},
	{FieldPhone, []string{"telefone", "fone", "número", "numero"}},
	{FieldState, []string{"estado", "uf"}},
	{FieldPeriod, []string{"período", "periodo"}},
	{FieldStartedAt, []string{"início", "inicio", "data"}},
	{FieldAnsweredAt, []string{"atendimento"}},
	{FieldEndedAt, []string{"término", "termino", "fim"}},
	{FieldDuration, []string{"duração", "duracao", "tma"}},
}

func expectedSubstrings(f Field) []string {
	for _, r := range columnRules {
		if r.field == f {
			return r.substrings
		}
	}
	return nil
}

// ColumnMap resolves logical fields to column indexes of the header row
type ColumnMap struct {
	HeaderRow int
	Layout    Layout
	index     map[Field]int
}

// Index returns the column of field f
func (m ColumnMap) Index(f Field) (int, bool) {
	i, ok := m.index[f]
	return i, ok
}

// Cell returns the cell of field f in row, or Empty when f is unmapped
func (m ColumnMap) Cell(row []sheet.Cell, f Field) sheet.Cell {
	i, ok := m.index[f]
	if !ok || i >= len(row) {
		return sheet.Empty()
	}
	return row[i]
}

// Fields returns the number of resolved fields
func (m ColumnMap) Fields() int {
	return len(m.index)
}

// LocateHeader returns the index of the first row, among the first
// HeaderScanRows, holding a cell that contains HeaderAnchor
func LocateHeader(grid sheet.Grid) (int, error) {
	limit := min(HeaderScanRows, len(grid))
	for i := 0; i < limit; i++ {
		for _, c := range grid[i] {
			if strings.Contains(headerLabel(c), HeaderAnchor) {
				return i, nil
			}
		}
	}
	return -1, &HeaderNotFoundError{Anchor: HeaderAnchor, RowsScanned: limit}
}

// MapColumns locates the header row and resolves every logical column.
// The queue column is always required; the remaining requirement depends
// on the layout: answered and abandoned counts, or a status column.
func MapColumns(grid sheet.Grid) (ColumnMap, error) {
	headerRow, err := LocateHeader(grid)
	if err != nil {
		return ColumnMap{}, err
	}

	labels := make([]string, len(grid[headerRow]))
	for i, c := range grid[headerRow] {
		labels[i] = headerLabel(c)
	}

	index := make(map[Field]int, len(columnRules))
	for _, rule := range columnRules {
		if i := findColumn(labels, rule.substrings); i >= 0 {
			index[rule.field] = i
		}
	}

	m := ColumnMap{HeaderRow: headerRow, index: index}

	if _, ok := index[FieldQueue]; !ok {
		return ColumnMap{}, missingColumn(FieldQueue, headerRow, labels)
	}

	_, hasAnswered := index[FieldAnsweredCount]
	_, hasAbandoned := index[FieldAbandonedCount]
	_, hasStatus := index[FieldStatus]

	switch {
	case hasAnswered && hasAbandoned:
		m.Layout = LayoutSummary
	case hasStatus && !hasAnswered && !hasAbandoned:
		m.Layout = LayoutPerCall
	case !hasAnswered:
		return ColumnMap{}, missingColumn(FieldAnsweredCount, headerRow, labels)
	default:
		return ColumnMap{}, missingColumn(FieldAbandonedCount, headerRow, labels)
	}

	return m, nil
}

func headerLabel(c sheet.Cell) string {
	return strings.ToLower(SanitizeCell(c))
}

func findColumn(labels []string, substrings []string) int {
	for _, sub := range substrings {
		for i, label := range labels {
			if label != "" && strings.Contains(label, sub) {
				return i
			}
		}
	}
	return -1
}

func missingColumn(f Field, headerRow int, labels []string) *MissingColumnError {
	expected := expectedSubstrings(f)
	err := &MissingColumnError{Field: f, Expected: expected, HeaderRow: headerRow}

	var candidates []string
	for _, l := range labels {
		if l != "" {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) > 0 && len(expected) > 0 {
		cm := closestmatch.New(candidates, []int{2, 3})
		err.Suggestion = cm.Closest(expected[0])
	}
	return err
}
