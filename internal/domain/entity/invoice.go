package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the business/payment status of an invoice. It is changed
// only by explicit user action and is independent of ProcessingStatus.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "Pending"
	InvoiceStatusApproved InvoiceStatus = "Approved"
	InvoiceStatusPaid     InvoiceStatus = "Paid"
)

// Valid reports whether s is a known business status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusApproved, InvoiceStatusPaid:
		return true
	}
	return false
}

// ProcessingStatus is the pipeline lifecycle of an invoice. Transitions are
// pending -> processing -> {completed, failed}. A failing run requeues the
// invoice as pending until its attempt budget is exhausted; failed is the
// dead-letter state, left only through an explicit reprocess request.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// Invoice is one uploaded invoice document.
type Invoice struct {
	ID               string              `json:"id"`
	UploadedAt       time.Time           `json:"uploaded_at"`
	FilePath         string              `json:"file_path"`
	FileName         string              `json:"file_name"`
	PageCount        int                 `json:"page_count"`
	Building         *string             `json:"building"`
	Unit             *string             `json:"unit"`
	Description      *string             `json:"description"`
	Amount           decimal.NullDecimal `json:"amount"`
	IssueID          *string             `json:"issue_id"`
	Status           InvoiceStatus       `json:"status"`
	ProcessingStatus ProcessingStatus    `json:"processing_status"`
	Attempts         int                 `json:"attempts"`
	ErrorMessage     *string             `json:"error_message"`
}

// ExtractedFields is the ephemeral value object produced mid-pipeline. It is
// never persisted directly; the orchestrator merges it into the invoice row
// at the end of a run.
type ExtractedFields struct {
	Building    *string
	Unit        *string
	Description *string
	Amount      *decimal.Decimal
}

// Complete reports whether every field has a value. The fallback enricher
// runs only when this is false.
func (f ExtractedFields) Complete() bool {
	return f.Building != nil && f.Unit != nil && f.Description != nil && f.Amount != nil
}
