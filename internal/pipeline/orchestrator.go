// Package pipeline drives the extraction-enrichment-matching pipeline for
// one invoice at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/address"
	"github.com/21andrewchang/hermes/internal/docai"
	"github.com/21andrewchang/hermes/internal/domain/entity"
	"github.com/21andrewchang/hermes/internal/extract"
)

const pdfMimeType = "application/pdf"

// outcomeWriteTimeout bounds the outcome write, which must still land after
// the run deadline that caused the failure has expired.
const outcomeWriteTimeout = 10 * time.Second

// FileStore reads stored invoice documents.
type FileStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// DocumentProcessor is the document-understanding service boundary.
type DocumentProcessor interface {
	Process(ctx context.Context, content []byte, mimeType string) (*docai.Document, error)
}

// Enricher fills missing fields with a language-model pass.
type Enricher interface {
	Enrich(ctx context.Context, fields entity.ExtractedFields, documentText string) (entity.ExtractedFields, error)
}

// IssueMatcher finds the best-matching issue for the extracted fields.
type IssueMatcher interface {
	Match(ctx context.Context, fields entity.ExtractedFields, issues []entity.Issue) (*string, error)
}

// InvoiceStore writes the single outcome update per pipeline run. A failure
// write may requeue the invoice or dead-letter it, depending on how many
// attempts it has left.
type InvoiceStore interface {
	CompleteProcessing(ctx context.Context, id string, fields entity.ExtractedFields, issueID *string) error
	FailProcessing(ctx context.Context, id string, message string) error
}

// IssueStore lists match candidates, fetched fresh per invoice.
type IssueStore interface {
	List(ctx context.Context) ([]entity.Issue, error)
}

// Orchestrator runs the pipeline end-to-end for one invoice: download, call
// the document service, extract fields, parse the receiver address, enrich
// if needed, match against issues, then persist exactly one outcome.
// Runs share no mutable state, so failures never leak across invoices.
type Orchestrator struct {
	files        FileStore
	processor    DocumentProcessor
	enricher     Enricher
	matcher      IssueMatcher
	invoices     InvoiceStore
	issues       IssueStore
	stageTimeout time.Duration
	logger       *zap.Logger
}

// NewOrchestrator creates an Orchestrator. stageTimeout bounds each external
// call; zero disables the per-stage deadline.
func NewOrchestrator(
	files FileStore,
	processor DocumentProcessor,
	enricher Enricher,
	matcher IssueMatcher,
	invoices InvoiceStore,
	issues IssueStore,
	stageTimeout time.Duration,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		files:        files,
		processor:    processor,
		enricher:     enricher,
		matcher:      matcher,
		invoices:     invoices,
		issues:       issues,
		stageTimeout: stageTimeout,
		logger:       logger,
	}
}

// Process runs the pipeline for an invoice already claimed into the
// processing state and records its outcome. It never returns an error:
// failures are captured on the invoice record itself.
func (o *Orchestrator) Process(ctx context.Context, inv *entity.Invoice) {
	start := time.Now()
	o.logger.Info("Processing invoice",
		zap.String("invoice_id", inv.ID),
		zap.String("file_name", inv.FileName))

	fields, issueID, err := o.run(ctx, inv)
	if err != nil {
		message := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			message = fmt.Sprintf("%v (stage timeout %s exceeded)", err, o.stageTimeout)
		}

		o.logger.Error("Invoice processing failed",
			zap.String("invoice_id", inv.ID),
			zap.Error(err))

		writeCtx, cancel := outcomeContext(ctx)
		defer cancel()
		if failErr := o.invoices.FailProcessing(writeCtx, inv.ID, message); failErr != nil {
			// Unrecoverable: the failure itself could not be recorded.
			o.logger.Error("Failed to record processing failure",
				zap.String("invoice_id", inv.ID),
				zap.Error(failErr))
		}
		return
	}

	writeCtx, cancel := outcomeContext(ctx)
	defer cancel()
	if err := o.invoices.CompleteProcessing(writeCtx, inv.ID, fields, issueID); err != nil {
		o.logger.Error("Failed to persist completed invoice",
			zap.String("invoice_id", inv.ID),
			zap.Error(err))
		return
	}

	o.logger.Info("Invoice processing completed",
		zap.String("invoice_id", inv.ID),
		zap.Bool("matched", issueID != nil),
		zap.Duration("elapsed", time.Since(start)))
}

func (o *Orchestrator) run(ctx context.Context, inv *entity.Invoice) (entity.ExtractedFields, *string, error) {
	var fields entity.ExtractedFields

	content, err := o.downloadFile(ctx, inv.FilePath)
	if err != nil {
		return fields, nil, stageErr(StageDownload, err)
	}

	doc, err := o.processDocument(ctx, content)
	if err != nil {
		return fields, nil, stageErr(StageDocument, err)
	}
	if doc == nil {
		return fields, nil, stageErr(StageDocument, ErrNoDocument)
	}

	result := extract.Fields(doc.Entities)
	fields = result.Fields

	if result.ReceiverAddress != nil {
		parsed := address.Parse(*result.ReceiverAddress)
		extract.ApplyAddress(&fields, parsed)
	}

	if !fields.Complete() {
		o.logger.Debug("Primary extraction incomplete, running enrichment",
			zap.String("invoice_id", inv.ID))
		fields, err = o.enrich(ctx, fields, doc.Text)
		if err != nil {
			return fields, nil, stageErr(StageEnrich, err)
		}
	}

	issueID, err := o.matchIssue(ctx, fields)
	if err != nil {
		return fields, nil, stageErr(StageMatch, err)
	}

	return fields, issueID, nil
}

func (o *Orchestrator) downloadFile(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.files.Read(ctx, path)
}

func (o *Orchestrator) processDocument(ctx context.Context, content []byte) (*docai.Document, error) {
	ctx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.processor.Process(ctx, content, pdfMimeType)
}

func (o *Orchestrator) enrich(ctx context.Context, fields entity.ExtractedFields, text string) (entity.ExtractedFields, error) {
	ctx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.enricher.Enrich(ctx, fields, text)
}

func (o *Orchestrator) matchIssue(ctx context.Context, fields entity.ExtractedFields) (*string, error) {
	ctx, cancel := o.stageContext(ctx)
	defer cancel()

	issues, err := o.issues.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	return o.matcher.Match(ctx, fields, issues)
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.stageTimeout)
}

// outcomeContext detaches the outcome write from the run context so that a
// run killed by its deadline (or a shutdown) can still be recorded, instead
// of stranding the invoice in the processing state.
func outcomeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
}
