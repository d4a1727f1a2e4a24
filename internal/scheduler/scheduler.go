// Package scheduler refreshes configured datasets in the background so cache
// entries stay warm and the archive accumulates history without request
// traffic.
package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/huanchen1107/TawinCWA/internal/catalog"
	"github.com/huanchen1107/TawinCWA/internal/models"
	"github.com/huanchen1107/TawinCWA/internal/observability"
	"github.com/huanchen1107/TawinCWA/internal/service"
)

// target is one dataset slated for periodic refresh.
type target struct {
	provider models.Provider
	dataset  string
}

// Scheduler drives periodic dataset refreshes with per-category intervals.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *service.DataService
	targets   []target
	ttls      map[catalog.Category]time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler for "provider/dataset" pairs. Malformed entries are
// logged and skipped.
func New(datasets []string, svc *service.DataService, ttls map[catalog.Category]time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   svc,
		ttls:      ttls,
		logger:    logger,
	}
	for _, entry := range datasets {
		providerName, dataset, ok := strings.Cut(entry, "/")
		if !ok {
			logger.Warn("skipping malformed refresh entry", zap.String("entry", entry))
			continue
		}
		provider, err := models.ParseProvider(providerName)
		if err != nil {
			logger.Warn("skipping refresh entry with unknown provider", zap.String("entry", entry))
			continue
		}
		s.targets = append(s.targets, target{provider: provider, dataset: dataset})
	}
	return s
}

// Start schedules one job per dataset at its category's TTL interval, so each
// cache entry is re-fetched just as it expires.
func (s *Scheduler) Start() error {
	if len(s.targets) == 0 {
		s.logger.Info("no refresh datasets configured")
		return nil
	}

	for _, t := range s.targets {
		t := t
		interval := catalog.TTL(t.provider, t.dataset, s.ttls)
		if interval < time.Minute {
			interval = time.Minute
		}
		if _, err := s.scheduler.Every(interval).Do(func() {
			s.refresh(t)
		}); err != nil {
			return err
		}
		s.logger.Info("scheduled dataset refresh",
			zap.String("provider", string(t.provider)),
			zap.String("dataset", t.dataset),
			zap.Duration("interval", interval))
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) refresh(t target) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := string(t.provider) + "/" + t.dataset
	result, err := s.service.GetDataset(ctx, t.provider, t.dataset, nil)
	if err != nil {
		observability.RefreshRunsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Warn("refresh failed", zap.String("dataset", name), zap.Error(err))
		return
	}
	observability.RefreshRunsTotal.WithLabelValues(name, "ok").Inc()
	s.logger.Debug("refresh completed",
		zap.String("dataset", name),
		zap.Int("records", len(result.Records)),
		zap.Int("alerts", len(result.Alerts)),
		zap.Bool("from_cache", result.FromCache))
}

// Stop stops the scheduler and cancels future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
