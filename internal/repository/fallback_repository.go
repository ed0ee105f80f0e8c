package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
	"github.com/mvahmadali/CrashAnalytix/internal/metrics"
)

// FallbackStore writes to the primary store and keeps records the primary
// rejected in memory, so callers never see a persistence failure unless both
// fail.
type FallbackStore struct {
	primary  Store
	fallback *MemoryStore
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewFallbackStore(primary Store, m *metrics.Metrics, log zerolog.Logger) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		fallback: NewMemoryStore(),
		metrics:  m,
		log:      log,
	}
}

func (s *FallbackStore) Save(ctx context.Context, record *accident.Record) (string, error) {
	id, err := s.primary.Save(ctx, record)
	s.metrics.StoreOperation(s.primary.Backend(), "save", err)
	if err == nil {
		return id, nil
	}

	s.log.Warn().
		Err(err).
		Str("id", record.ID).
		Str("backend", s.primary.Backend()).
		Msg("failed to save accident record, keeping it in memory")

	id, memErr := s.fallback.Save(ctx, record)
	s.metrics.StoreOperation(BackendMemory, "save", memErr)
	if memErr != nil {
		return "", fmt.Errorf("failed to save accident record: %w", errors.Join(err, memErr))
	}
	return id, nil
}

func (s *FallbackStore) List(ctx context.Context, sortBySeverity bool) ([]accident.Record, error) {
	held, _ := s.fallback.List(ctx, sortBySeverity)

	records, err := s.primary.List(ctx, sortBySeverity)
	s.metrics.StoreOperation(s.primary.Backend(), "list", err)
	if err != nil {
		s.log.Warn().Err(err).Str("backend", s.primary.Backend()).Msg("failed to list accident records, serving memory")
		return held, nil
	}
	if len(held) == 0 {
		return records, nil
	}

	records = append(records, held...)
	SortRecords(records, sortBySeverity)
	return records, nil
}

func (s *FallbackStore) Get(ctx context.Context, id string) (*accident.Record, error) {
	rec, err := s.primary.Get(ctx, id)
	s.metrics.StoreOperation(s.primary.Backend(), "get", err)
	if err == nil {
		return rec, nil
	}

	if held, memErr := s.fallback.Get(ctx, id); memErr == nil {
		return held, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.log.Warn().Err(err).Str("id", id).Str("backend", s.primary.Backend()).Msg("failed to get accident record")
	}
	return nil, err
}

func (s *FallbackStore) Backend() string {
	return s.primary.Backend()
}
