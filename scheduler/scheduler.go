package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"landsale/config"
)

// Triggerable allows workers to be triggered on a schedule or manually
type Triggerable interface {
	Trigger()
}

type Scheduler struct {
	cfg    config.SchedulerConfig
	cron   *cron.Cron
	log    *zap.Logger
	stopCh chan struct{}
	once   sync.Once

	documentWorker Triggerable
	auditWorker    Triggerable
}

func New(cfg config.SchedulerConfig, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		cron:   cron.New(),
		log:    log.Named("scheduler"),
		stopCh: make(chan struct{}),
	}
}

// SetWorkers registers the background workers the schedules trigger
func (s *Scheduler) SetWorkers(documents, audit Triggerable) {
	s.documentWorker = documents
	s.auditWorker = audit
}

func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		w    Triggerable
	}{
		{"documents", s.cfg.DocumentsCron, s.documentWorker},
		{"audit", s.cfg.AuditCron, s.auditWorker},
	}

	scheduled := 0
	for _, job := range jobs {
		if job.spec == "" || job.w == nil {
			continue
		}
		w, name := job.w, job.name
		if _, err := s.cron.AddFunc(job.spec, func() {
			s.log.Debug("schedule fired", zap.String("job", name))
			w.Trigger()
		}); err != nil {
			return fmt.Errorf("invalid cron expression for %s: %w", name, err)
		}
		s.log.Info("job scheduled", zap.String("job", name), zap.String("cron", job.spec))
		scheduled++
	}

	if scheduled == 0 {
		s.log.Info("no schedule configured, workers only run when triggered")
		return nil
	}
	s.cron.Start()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		}
	}()
	return nil
}

// Stop halts the schedules. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
		<-s.cron.Stop().Done()
	})
}

// TriggerNow runs every registered worker once.
func (s *Scheduler) TriggerNow() {
	for _, w := range []Triggerable{s.documentWorker, s.auditWorker} {
		if w != nil {
			w.Trigger()
		}
	}
}
