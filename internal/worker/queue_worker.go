// Package worker runs the background extraction queue.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/21andrewchang/hermes/internal/domain/entity"
)

// QueueWorkerConfig holds configuration for the extraction queue worker.
type QueueWorkerConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	ProcessTimeout time.Duration
}

// DefaultQueueWorkerConfig returns default configuration
func DefaultQueueWorkerConfig() QueueWorkerConfig {
	return QueueWorkerConfig{
		PollInterval:   10 * time.Second,
		BatchSize:      5,
		ProcessTimeout: 120 * time.Second,
	}
}

// InvoiceClaimer atomically claims pending invoices into the processing
// state. An invoice is returned by at most one ClaimPending call.
type InvoiceClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]*entity.Invoice, error)
}

// InvoiceProcessor runs the extraction pipeline for one claimed invoice and
// records its outcome itself.
type InvoiceProcessor interface {
	Process(ctx context.Context, inv *entity.Invoice)
}

// QueueWorker drains the pending invoice queue. It polls the database on an
// interval and can be nudged for an immediate pass when an upload lands, so
// work starts without waiting out the ticker.
type QueueWorker struct {
	config QueueWorkerConfig

	claimer   InvoiceClaimer
	processor InvoiceProcessor
	logger    *zap.Logger

	wake chan struct{}

	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	isRunning      bool
	processedCount int
}

// NewQueueWorker creates a new queue worker
func NewQueueWorker(config QueueWorkerConfig, claimer InvoiceClaimer, processor InvoiceProcessor, logger *zap.Logger) *QueueWorker {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultQueueWorkerConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultQueueWorkerConfig().PollInterval
	}
	return &QueueWorker{
		config:    config,
		claimer:   claimer,
		processor: processor,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
}

// Start begins the worker polling loop
func (w *QueueWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("queue worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("QueueWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop()

	return nil
}

// Stop gracefully terminates the worker
func (w *QueueWorker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}

	w.isRunning = false
	processed := w.processedCount
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	w.logger.Info("QueueWorker stopped",
		zap.Int("processed_count", processed))
}

// Name returns the worker name for identification
func (w *QueueWorker) Name() string {
	return "QueueWorker"
}

// Nudge requests an immediate queue pass. Non-blocking; a pass already
// requested absorbs further nudges.
func (w *QueueWorker) Nudge() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *QueueWorker) pollLoop() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Poll loop context cancelled")
			return

		case <-w.wake:
		case <-ticker.C:
		}

		if err := w.drainQueue(); err != nil {
			w.logger.Error("Failed to drain invoice queue", zap.Error(err))
		}
	}
}

// drainQueue claims and processes batches until the queue is empty.
func (w *QueueWorker) drainQueue() error {
	for {
		select {
		case <-w.ctx.Done():
			return nil
		default:
		}

		invoices, err := w.claimer.ClaimPending(w.ctx, w.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to claim pending invoices: %w", err)
		}
		if len(invoices) == 0 {
			return nil
		}

		w.logger.Debug("Claimed invoice batch", zap.Int("count", len(invoices)))

		g, ctx := errgroup.WithContext(w.ctx)
		g.SetLimit(w.config.BatchSize)
		for _, inv := range invoices {
			g.Go(func() error {
				processCtx := ctx
				if w.config.ProcessTimeout > 0 {
					var cancel context.CancelFunc
					processCtx, cancel = context.WithTimeout(ctx, w.config.ProcessTimeout)
					defer cancel()
				}
				w.processor.Process(processCtx, inv)
				return nil
			})
		}
		_ = g.Wait()

		w.mu.Lock()
		w.processedCount += len(invoices)
		w.mu.Unlock()
	}
}
