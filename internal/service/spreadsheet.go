package service

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"tallyflow/internal/models"
	"tallyflow/internal/schema"
)

// SpreadsheetService decodes uploaded export files into ordered records
// and writes session exports. The import pipeline itself never touches
// file formats; this adapter sits between the upload handler and
// ImportService.CreateSession.
type SpreadsheetService struct{}

func NewSpreadsheetService() *SpreadsheetService {
	return &SpreadsheetService{}
}

// ParsedFile is a decoded upload: the header row and one record per data
// row, values keyed by header name.
type ParsedFile struct {
	Columns []string
	Records []map[string]string
}

// ParseImportFile decodes an .xlsx, .xls or .csv file. The first row is
// the header; completely empty data rows are skipped.
func (s *SpreadsheetService) ParseImportFile(filePath string) (*ParsedFile, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx", ".xls":
		return s.parseExcel(filePath)
	case ".csv":
		return s.parseCSV(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format %q", filepath.Ext(filePath))
	}
}

func (s *SpreadsheetService) parseExcel(filePath string) (*ParsedFile, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return buildParsedFile(rows)
}

func (s *SpreadsheetService) parseCSV(filePath string) (*ParsedFile, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return buildParsedFile(rows)
}

func buildParsedFile(rows [][]string) (*ParsedFile, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("file must contain a header row and at least one data row")
	}

	var columns []string
	for _, name := range rows[0] {
		name = strings.TrimSpace(name)
		if name != "" {
			columns = append(columns, name)
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("header row is empty")
	}

	var records []map[string]string
	for _, row := range rows[1:] {
		record := make(map[string]string, len(columns))
		empty := true
		for i, col := range columns {
			value := strings.TrimSpace(getCellValue(row, i))
			record[col] = value
			if value != "" {
				empty = false
			}
		}
		if !empty {
			records = append(records, record)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no data rows")
	}

	return &ParsedFile{Columns: columns, Records: records}, nil
}

// ExportSession writes a session's rows, their mapped fields and
// diagnostics to an Excel workbook.
func (s *SpreadsheetService) ExportSession(session *models.ImportSession, rows []models.ImportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Import Rows"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	fields := schema.Fields(session.ImportType)
	headers := []string{"Row"}
	for _, field := range fields {
		headers = append(headers, field.Label)
	}
	headers = append(headers, "Status", "Errors", "Warnings")

	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheetName, cell, header)
	}

	for r, row := range rows {
		values := []interface{}{row.RowNumber}
		for _, field := range fields {
			values = append(values, row.MappedData[field.Key])
		}
		values = append(values, row.Status, strings.Join(row.Errors, "; "), strings.Join(row.Warnings, "; "))
		for c, value := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			f.SetCellValue(sheetName, cell, value)
		}
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")
	return f.SaveAs(outputPath)
}

func getCellValue(row []string, index int) string {
	if index < len(row) {
		return row[index]
	}
	return ""
}
