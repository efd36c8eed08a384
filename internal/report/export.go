// Package report renders invoice data into downloadable spreadsheets.
package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/domain/entity"
)

const (
	sheetName    = "Invoices"
	dataRowStart = 2
)

var headers = []string{
	"ID", "Uploaded At", "File Name", "Pages", "Building", "Unit",
	"Description", "Amount", "Issue ID", "Status", "Processing Status",
	"Error",
}

// Exporter writes invoice listings as xlsx workbooks.
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new Exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// Export renders the invoices into a workbook and returns the serialized
// bytes, ready to stream as a download.
func (e *Exporter) Export(invoices []*entity.Invoice) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	index, err := file.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := e.writeHeader(file); err != nil {
		return nil, err
	}

	for i, inv := range invoices {
		if err := e.writeRow(file, dataRowStart+i, inv); err != nil {
			return nil, err
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	e.logger.Debug("Invoice export generated",
		zap.Int("invoice_count", len(invoices)),
		zap.Int("size_bytes", buf.Len()))

	return buf.Bytes(), nil
}

// FileName returns a timestamped download name for the export.
func FileName(now time.Time) string {
	return fmt.Sprintf("invoices_%s.xlsx", now.Format("20060102_150405"))
}

func (e *Exporter) writeHeader(file *excelize.File) error {
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := file.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header %s: %w", header, err)
		}
	}
	return nil
}

func (e *Exporter) writeRow(file *excelize.File, row int, inv *entity.Invoice) error {
	values := []any{
		inv.ID,
		inv.UploadedAt.Format(time.RFC3339),
		inv.FileName,
		inv.PageCount,
		strOrEmpty(inv.Building),
		strOrEmpty(inv.Unit),
		strOrEmpty(inv.Description),
		amountOrEmpty(inv),
		strOrEmpty(inv.IssueID),
		string(inv.Status),
		string(inv.ProcessingStatus),
		strOrEmpty(inv.ErrorMessage),
	}

	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("failed to build cell at row %d: %w", row, err)
		}
		if err := file.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func amountOrEmpty(inv *entity.Invoice) string {
	if !inv.Amount.Valid {
		return ""
	}
	return inv.Amount.Decimal.StringFixed(2)
}
