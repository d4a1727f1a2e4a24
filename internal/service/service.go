// Package service orchestrates the pipeline behind each dataset request:
// cache-aside fetch, normalization, threshold evaluation, and best-effort
// archival.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/huanchen1107/TawinCWA/internal/alert"
	"github.com/huanchen1107/TawinCWA/internal/archive"
	"github.com/huanchen1107/TawinCWA/internal/cache"
	"github.com/huanchen1107/TawinCWA/internal/catalog"
	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/models"
	"github.com/huanchen1107/TawinCWA/internal/normalize"
)

// Fetcher resolves a request to a raw payload, from cache or upstream.
type Fetcher interface {
	GetOrFetch(ctx context.Context, req client.FetchRequest, ttl time.Duration) (cache.Result, error)
}

// Recorder persists fetched payloads and their derived records and alerts.
type Recorder interface {
	StorePayload(ctx context.Context, provider models.Provider, dataset string, payload []byte) (int64, bool, error)
	InsertRecords(ctx context.Context, payloadID int64, records []models.WeatherRecord) error
	InsertAlerts(ctx context.Context, payloadID int64, events []models.AlertEvent) error
	History(ctx context.Context, provider models.Provider, dataset string, limit int) ([]archive.HistoryEntry, error)
	RecentAlerts(ctx context.Context, location string, limit int) ([]models.AlertEvent, error)
}

// DatasetResult is one fully processed dataset response.
type DatasetResult struct {
	Provider  models.Provider        `json:"provider"`
	Dataset   string                 `json:"dataset"`
	FetchedAt time.Time              `json:"fetchedAt"`
	Stale     bool                   `json:"stale"`
	FromCache bool                   `json:"fromCache"`
	Records   []models.WeatherRecord `json:"records"`
	Skipped   int                    `json:"skipped"`
	Alerts    []models.AlertEvent    `json:"alerts"`
}

// DataService is the orchestration layer. The recorder may be nil; archival is
// best-effort and never fails a request.
type DataService struct {
	fetcher  Fetcher
	recorder Recorder
	rules    []models.ThresholdRule
	ttls     map[catalog.Category]time.Duration
	tracker  *fetchTracker
	logger   *zap.Logger
}

// NewDataService wires the pipeline together.
func NewDataService(fetcher Fetcher, recorder Recorder, rules []models.ThresholdRule, ttls map[catalog.Category]time.Duration, logger *zap.Logger) *DataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataService{
		fetcher:  fetcher,
		recorder: recorder,
		rules:    rules,
		ttls:     ttls,
		tracker:  newFetchTracker(),
		logger:   logger,
	}
}

// GetDataset fetches, normalizes, and evaluates one dataset.
func (s *DataService) GetDataset(ctx context.Context, provider models.Provider, dataset string, params map[string]string) (DatasetResult, error) {
	req := client.FetchRequest{Provider: provider, Dataset: dataset, Params: params}
	ttl := catalog.TTL(provider, dataset, s.ttls)

	key := string(provider) + "/" + dataset
	if concurrent := s.tracker.Enter(key); concurrent > 1 {
		s.logger.Debug("concurrent requests for dataset",
			zap.String("dataset", key),
			zap.Int("concurrent", concurrent))
	}
	defer s.tracker.Leave(key)

	raw, err := s.fetcher.GetOrFetch(ctx, req, ttl)
	if err != nil {
		return DatasetResult{}, err
	}

	norm, err := normalize.Normalize(provider, dataset, raw.Payload)
	if err != nil {
		return DatasetResult{}, err
	}

	events := alert.Evaluate(norm.Records, s.rules)
	result := DatasetResult{
		Provider:  provider,
		Dataset:   dataset,
		FetchedAt: raw.FetchedAt,
		Stale:     raw.Stale,
		FromCache: raw.FromCache,
		Records:   norm.Records,
		Skipped:   norm.Skipped,
		Alerts:    events,
	}

	// Archive fresh fetches only; cached payloads were recorded when first
	// fetched.
	if s.recorder != nil && !raw.FromCache {
		s.record(ctx, provider, dataset, raw.Payload, norm.Records, events)
	}
	return result, nil
}

func (s *DataService) record(ctx context.Context, provider models.Provider, dataset string, payload []byte, records []models.WeatherRecord, events []models.AlertEvent) {
	payloadID, inserted, err := s.recorder.StorePayload(ctx, provider, dataset, payload)
	if err != nil {
		s.logger.Warn("archive payload failed",
			zap.String("provider", string(provider)),
			zap.String("dataset", dataset),
			zap.Error(err))
		return
	}
	if !inserted {
		// Identical payload already archived along with its records.
		return
	}
	if err := s.recorder.InsertRecords(ctx, payloadID, records); err != nil {
		s.logger.Warn("archive records failed", zap.Int64("payload_id", payloadID), zap.Error(err))
	}
	if len(events) > 0 {
		if err := s.recorder.InsertAlerts(ctx, payloadID, events); err != nil {
			s.logger.Warn("archive alerts failed", zap.Int64("payload_id", payloadID), zap.Error(err))
		}
	}
}

// Rules exposes the configured threshold rules.
func (s *DataService) Rules() []models.ThresholdRule {
	return s.rules
}

// History lists archived fetches for a dataset, newest first. Empty without a
// recorder.
func (s *DataService) History(ctx context.Context, provider models.Provider, dataset string, limit int) ([]archive.HistoryEntry, error) {
	if s.recorder == nil {
		return nil, nil
	}
	return s.recorder.History(ctx, provider, dataset, limit)
}

// RecentAlerts lists archived alert events, optionally filtered by location.
func (s *DataService) RecentAlerts(ctx context.Context, location string, limit int) ([]models.AlertEvent, error) {
	if s.recorder == nil {
		return nil, nil
	}
	return s.recorder.RecentAlerts(ctx, location, limit)
}
