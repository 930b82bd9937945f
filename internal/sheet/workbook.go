package sheet

import (
	"bytes"
	"fmt"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// unzipRatio bounds how far an xlsx payload may expand when unpacked
const unzipRatio = 20

// unzipLimit is the largest unpacked size accepted for a payload limit
func unzipLimit(payloadLimit int64) int64 {
	return payloadLimit * unzipRatio
}

// DecodeWorkbook reads the first worksheet of an xlsx workbook. Cell values
// are read raw so date cells arrive as serial numbers.
func DecodeWorkbook(payload []byte) (Grid, error) {
	return decodeWorkbook(payload, unzipLimit(MaxPayloadBytes))
}

func decodeWorkbook(payload []byte, maxUnzipped int64) (Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload), excelize.Options{
		UnzipSizeLimit:    maxUnzipped,
		UnzipXMLSizeLimit: min(maxUnzipped, excelize.StreamChunkSize),
	})
	if err != nil {
		return nil, &DecodeError{Format: FormatXLSX, Err: err}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &DecodeError{Format: FormatXLSX, Err: ErrNoWorksheet}
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &DecodeError{Format: FormatXLSX, Err: fmt.Errorf("read rows of %q: %w", sheets[0], err)}
	}
	if len(rows) == 0 {
		return nil, &DecodeError{Format: FormatXLSX, Err: ErrEmptyWorksheet}
	}

	return FromStrings(rows), nil
}

// DecodeLegacyWorkbook reads the first worksheet of a BIFF (.xls) workbook
func DecodeLegacyWorkbook(payload []byte) (Grid, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &DecodeError{Format: FormatXLS, Err: err}
	}
	if workbook.GetNumberSheets() == 0 {
		return nil, &DecodeError{Format: FormatXLS, Err: ErrNoWorksheet}
	}

	ws, err := workbook.GetSheet(0)
	if err != nil || ws == nil {
		return nil, &DecodeError{Format: FormatXLS, Err: ErrNoWorksheet}
	}

	var rows [][]string
	for i := 0; i < int(ws.GetNumberRows()); i++ {
		row, err := ws.GetRow(i)
		if err != nil || row == nil {
			rows = append(rows, nil)
			continue
		}
		var values []string
		for _, col := range row.GetCols() {
			if col == nil {
				values = append(values, "")
				continue
			}
			values = append(values, col.GetString())
		}
		rows = append(rows, values)
	}
	if len(rows) == 0 {
		return nil, &DecodeError{Format: FormatXLS, Err: ErrEmptyWorksheet}
	}

	return FromStrings(rows), nil
}
