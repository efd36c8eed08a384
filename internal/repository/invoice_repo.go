// Package repository holds the sqlite-backed stores for invoices and issues.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/domain/entity"
)

const invoiceColumns = `id, uploaded_at, file_path, file_name, page_count,
	building, unit, description, amount, issue_id, status, processing_status,
	attempts, error_message`

// DefaultMaxAttempts is the processing attempt budget before an invoice is
// parked in the failed dead-letter state.
const DefaultMaxAttempts = 3

// ErrInvalidTransition reports a state-guarded update that matched no row
// because the invoice was not in the expected processing state.
var ErrInvalidTransition = errors.New("invoice not in expected processing state")

// InvoiceRepository persists invoice records.
type InvoiceRepository struct {
	db          *sql.DB
	maxAttempts int
	logger      *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository. maxAttempts bounds
// automatic retries; values below one fall back to DefaultMaxAttempts.
func NewInvoiceRepository(db *sql.DB, maxAttempts int, logger *zap.Logger) *InvoiceRepository {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &InvoiceRepository{
		db:          db,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Create inserts a new invoice record.
func (r *InvoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, uploaded_at, file_path, file_name, page_count,
			status, processing_status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.UploadedAt,
		inv.FilePath,
		inv.FileName,
		inv.PageCount,
		inv.Status,
		inv.ProcessingStatus,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice by id, or (nil, nil) when it does not exist.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := fmt.Sprintf("SELECT %s FROM invoices WHERE id = ?", invoiceColumns)

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return inv, nil
}

// List returns all invoices, newest upload first.
func (r *InvoiceRepository) List(ctx context.Context) ([]*entity.Invoice, error) {
	query := fmt.Sprintf("SELECT %s FROM invoices ORDER BY uploaded_at DESC", invoiceColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

// ClaimPending atomically moves up to limit pending invoices into the
// processing state and returns the claimed records. The compare-and-set
// update guarantees each invoice is claimed at most once even with several
// workers polling.
func (r *InvoiceRepository) ClaimPending(ctx context.Context, limit int) ([]*entity.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices
		WHERE processing_status = ?
		ORDER BY uploaded_at ASC
		LIMIT ?`, invoiceColumns)

	rows, err := r.db.QueryContext(ctx, query, entity.ProcessingPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending invoices: %w", err)
	}
	defer rows.Close()

	var pending []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		pending = append(pending, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var claimed []*entity.Invoice
	for _, inv := range pending {
		result, err := r.db.ExecContext(ctx,
			"UPDATE invoices SET processing_status = ? WHERE id = ? AND processing_status = ?",
			entity.ProcessingProcessing, inv.ID, entity.ProcessingPending,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim invoice %s: %w", inv.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 1 {
			inv.ProcessingStatus = entity.ProcessingProcessing
			claimed = append(claimed, inv)
		}
	}

	return claimed, nil
}

// CompleteProcessing writes the final extracted fields and match result and
// marks the invoice completed. The guard on the current state makes the
// terminal transition happen at most once.
func (r *InvoiceRepository) CompleteProcessing(ctx context.Context, id string, fields entity.ExtractedFields, issueID *string) error {
	amount := decimal.NullDecimal{}
	if fields.Amount != nil {
		amount = decimal.NullDecimal{Decimal: *fields.Amount, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET building = ?, unit = ?, description = ?, amount = ?, issue_id = ?,
			processing_status = ?, error_message = NULL
		WHERE id = ? AND processing_status = ?`,
		fields.Building, fields.Unit, fields.Description, amount, issueID,
		entity.ProcessingCompleted, id, entity.ProcessingProcessing,
	)
	if err != nil {
		r.logger.Error("Failed to complete invoice", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to complete invoice: %w", err)
	}

	return requireTransition(result, id, "complete")
}

// FailProcessing records a failed run. Until the attempt budget is spent the
// invoice goes back to pending for the next poll pass; after that it lands in
// the failed dead-letter state. The last error message is kept either way.
func (r *InvoiceRepository) FailProcessing(ctx context.Context, id string, message string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET attempts = attempts + 1,
			processing_status = CASE WHEN attempts + 1 >= ? THEN ? ELSE ? END,
			error_message = ?
		WHERE id = ? AND processing_status = ?`,
		r.maxAttempts, entity.ProcessingFailed, entity.ProcessingPending,
		message, id, entity.ProcessingProcessing,
	)
	if err != nil {
		r.logger.Error("Failed to record invoice failure", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to record invoice failure: %w", err)
	}

	return requireTransition(result, id, "record failure")
}

// ReleaseStuck returns invoices left in the processing state by an earlier
// crash to pending. Run at startup before any worker starts, when no live
// run can hold a claim.
func (r *InvoiceRepository) ReleaseStuck(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET processing_status = ?
		WHERE processing_status = ?`,
		entity.ProcessingPending, entity.ProcessingProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stuck invoices: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Requeue resets a failed invoice to pending with a fresh attempt budget so
// the worker picks it up again. Only failed invoices are reprocessable.
func (r *InvoiceRepository) Requeue(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET processing_status = ?, attempts = 0, error_message = NULL
		WHERE id = ? AND processing_status = ?`,
		entity.ProcessingPending, id, entity.ProcessingFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue invoice: %w", err)
	}

	return requireTransition(result, id, "requeue")
}

// UpdateStatus changes the business/payment status. The processing status is
// untouched; the two axes are independent.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status entity.InvoiceStatus) (*entity.Invoice, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE invoices SET status = ? WHERE id = ?", status, id)
	if err != nil {
		r.logger.Error("Failed to update invoice status", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update invoice status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

func requireTransition(result sql.Result, id string, action string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cannot %s invoice %s: %w", action, id, ErrInvalidTransition)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var building, unit, description, issueID, errorMessage sql.NullString
	var amount decimal.NullDecimal

	err := row.Scan(
		&inv.ID,
		&inv.UploadedAt,
		&inv.FilePath,
		&inv.FileName,
		&inv.PageCount,
		&building,
		&unit,
		&description,
		&amount,
		&issueID,
		&inv.Status,
		&inv.ProcessingStatus,
		&inv.Attempts,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	inv.Building = nullableString(building)
	inv.Unit = nullableString(unit)
	inv.Description = nullableString(description)
	inv.IssueID = nullableString(issueID)
	inv.ErrorMessage = nullableString(errorMessage)
	inv.Amount = amount

	return &inv, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
