package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
	"landsale/services"
)

// AuditWorker periodically checks that every land's counters match its lot
// statuses. With repair enabled it rewrites drifted counters.
type AuditWorker struct {
	catalog   *services.Catalog
	log       *zap.Logger
	repair    bool
	triggerCh chan struct{}
}

func NewAuditWorker(catalog *services.Catalog, log *zap.Logger, repair bool) *AuditWorker {
	return &AuditWorker{
		catalog:   catalog,
		log:       log.Named("audit"),
		repair:    repair,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *AuditWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *AuditWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("audit worker stopping")
			return
		case <-ticker.C:
			w.Check(ctx)
		case <-w.triggerCh:
			w.log.Info("audit triggered manually")
			w.Check(ctx)
		}
	}
}

// Check runs one audit pass and returns how many lands had drifted.
func (w *AuditWorker) Check(ctx context.Context) int {
	drifted, err := w.catalog.Audit(ctx, w.repair)
	if err != nil {
		w.log.Error("audit failed", zap.Error(err))
	}
	if len(drifted) > 0 {
		w.log.Warn("audit found drift", zap.Int("lands", len(drifted)), zap.Bool("repaired", w.repair))
	}
	return len(drifted)
}
