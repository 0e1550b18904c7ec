package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyFile is returned when the workbook decodes fine but yields no
// data rows (missing sheet, header-only, or fully blank).
var ErrEmptyFile = errors.New("file contains no data rows")

// headerRowOffset shifts reported row numbers past the header row so the
// first data row is reported as row 2.
const headerRowOffset = 1

// ReadWorkbook parses a binary spreadsheet into an ordered sequence of
// RawRow. Only the first worksheet is read. Either the whole sequence is
// returned or an error; there are no partial results, and re-reading the
// same file yields the same rows.
func ReadWorkbook(r io.Reader) ([]RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	excelRows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(excelRows) < 2 {
		return nil, ErrEmptyFile
	}

	headers := normalizeHeaders(excelRows[0])

	rows := make([]RawRow, 0, len(excelRows)-1)
	for idx, excelRow := range excelRows[1:] {
		cells := make(map[string]string, len(headers))
		for i, value := range excelRow {
			if i < len(headers) && headers[i] != "" {
				cells[headers[i]] = strings.TrimSpace(value)
			}
		}
		rows = append(rows, RawRow{Number: idx + headerRowOffset + 1, Cells: cells})
	}

	return rows, nil
}

// ReadCSV parses a CSV file under the same contract as ReadWorkbook.
func ReadCSV(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headerRecord, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	headers := normalizeHeaders(headerRecord)

	var rows []RawRow
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", lineNum+1, err)
		}

		cells := make(map[string]string, len(headers))
		for i, value := range record {
			if i < len(headers) && headers[i] != "" {
				cells[headers[i]] = strings.TrimSpace(value)
			}
		}
		rows = append(rows, RawRow{Number: lineNum + headerRowOffset, Cells: cells})
		lineNum++
	}

	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	return rows, nil
}

// normalizeHeaders lowercases and trims column headers and strips the
// required marker the downloadable template adds.
func normalizeHeaders(headers []string) []string {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(strings.ToLower(h))
		h = strings.TrimSuffix(h, " *")
		normalized[i] = h
	}
	return normalized
}
