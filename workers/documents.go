package workers

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"landsale/metrics"
	"landsale/models"
	"landsale/services"
)

// DocumentWorker renders and uploads contract documents that are still
// missing, retrying each contract up to models.MaxDocumentAttempts times.
type DocumentWorker struct {
	docs      *services.DocumentService
	log       *zap.Logger
	batchSize int
	pause     time.Duration
	triggerCh chan struct{}
}

func NewDocumentWorker(docs *services.DocumentService, log *zap.Logger, batchSize int) *DocumentWorker {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &DocumentWorker{
		docs:      docs,
		log:       log.Named("documents"),
		batchSize: batchSize,
		pause:     200 * time.Millisecond,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *DocumentWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run processes a batch every interval and whenever triggered.
func (w *DocumentWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("document worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		case <-w.triggerCh:
			w.ProcessBatch(ctx)
		}
	}
}

// BatchResult counts the outcome of one batch.
type BatchResult struct {
	Processed int
	Failed    int
	GaveUp    int // contracts that used their last attempt
	Skipped   int // held by another attempt
}

func (w *DocumentWorker) ProcessBatch(ctx context.Context) BatchResult {
	var result BatchResult

	contracts, err := w.docs.Pending(ctx, w.batchSize)
	if err != nil {
		w.log.Error("query pending contracts", zap.Error(err))
		return result
	}
	metrics.DocumentQueue.Set(float64(len(contracts)))
	if len(contracts) == 0 {
		return result
	}

	w.log.Info("processing contracts", zap.Int("count", len(contracts)))

	for i := range contracts {
		c := &contracts[i]
		if ctx.Err() != nil {
			break
		}

		ref, err := w.docs.Attach(ctx, c.ID)
		if errors.Is(err, services.ErrDocumentBusy) {
			result.Skipped++
			w.log.Debug("contract document claimed elsewhere", zap.Stringer("contract", c.ID))
			continue
		}
		if err != nil {
			result.Failed++
			if c.DocumentAttempts+1 >= models.MaxDocumentAttempts {
				result.GaveUp++
				w.log.Error("contract document abandoned",
					zap.Stringer("contract", c.ID), zap.Int("attempts", c.DocumentAttempts+1), zap.Error(err))
			} else {
				w.log.Warn("contract document failed",
					zap.Stringer("contract", c.ID), zap.Int("attempts", c.DocumentAttempts+1), zap.Error(err))
			}
			continue
		}

		result.Processed++
		w.log.Info("contract document stored", zap.Stringer("contract", c.ID), zap.String("ref", ref))

		if w.pause > 0 {
			time.Sleep(w.pause)
		}
	}

	w.log.Info("batch done",
		zap.Int("processed", result.Processed), zap.Int("failed", result.Failed), zap.Int("gave_up", result.GaveUp), zap.Int("skipped", result.Skipped))
	return result
}

// ErrNoDocumentStore is returned when reading back from NoOpUploader.
var ErrNoDocumentStore = errors.New("no document store configured")

// NoOpUploader drops documents. It stands in when no document store is
// configured.
type NoOpUploader struct{}

func (u *NoOpUploader) Put(ctx context.Context, name string, data io.Reader, contentType string) (string, error) {
	_, err := io.Copy(io.Discard, data)
	return "noop://" + name, err
}

func (u *NoOpUploader) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return nil, ErrNoDocumentStore
}

func NewNoOpUploader() *NoOpUploader {
	return &NoOpUploader{}
}
