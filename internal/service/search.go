package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
	"github.com/mvahmadali/CrashAnalytix/internal/utils"
)

// MaxPageSize caps an explicit page of accident history.
const MaxPageSize = 100

// AccidentQuery narrows the accident history. Nil fields do not filter. A
// zero Limit returns every match after Offset.
type AccidentQuery struct {
	SortBySeverity bool
	Plate          *string
	From           *string
	To             *string
	Limit          int
	Offset         int
}

type PlateSighting struct {
	Plate       string    `json:"plate"`
	EntityType  string    `json:"entity_type"`
	AccidentIDs []string  `json:"accident_ids"`
	LastSeen    time.Time `json:"last_seen"`
}

// FindAccidents lists accidents matching the query in store order, then
// applies offset and limit when they are set.
func (s *AccidentService) FindAccidents(ctx context.Context, q AccidentQuery) ([]accident.Record, error) {
	var normalizedPlate string
	if q.Plate != nil {
		normalizedPlate = utils.NormalizePlate(*q.Plate)
		if normalizedPlate == "" {
			return nil, fmt.Errorf("%w: plate cannot be empty after normalization", ErrInvalidInput)
		}
	}

	var fromTime, toTime *time.Time
	if q.From != nil && *q.From != "" {
		t, err := time.Parse(time.RFC3339, *q.From)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if q.To != nil && *q.To != "" {
		t, err := time.Parse(time.RFC3339, *q.To)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}
	if fromTime != nil && toTime != nil && toTime.Before(*fromTime) {
		return nil, fmt.Errorf("%w: to must not be before from", ErrInvalidInput)
	}

	limit := q.Limit
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	records, err := s.ListAccidents(ctx, q.SortBySeverity)
	if err != nil {
		return nil, err
	}

	matched := make([]accident.Record, 0, len(records))
	for _, rec := range records {
		if fromTime != nil && rec.Timestamp.Before(*fromTime) {
			continue
		}
		if toTime != nil && rec.Timestamp.After(*toTime) {
			continue
		}
		if normalizedPlate != "" && !hasPlate(rec, normalizedPlate) {
			continue
		}
		matched = append(matched, rec)
	}

	if offset >= len(matched) {
		return []accident.Record{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

// FindPlates groups the accidents a plate was recognized in. The query is
// normalized and matched as a prefix, so "ab 12" finds AB123.
func (s *AccidentService) FindPlates(ctx context.Context, plateQuery string) ([]PlateSighting, error) {
	normalized := utils.NormalizePlate(plateQuery)
	if normalized == "" {
		return nil, fmt.Errorf("%w: plate query cannot be empty", ErrInvalidInput)
	}

	records, err := s.ListAccidents(ctx, false)
	if err != nil {
		return nil, err
	}

	byPlate := make(map[string]*PlateSighting)
	for _, rec := range records {
		for _, e := range rec.Entities {
			if e.LicensePlate == nil || *e.LicensePlate == "" {
				continue
			}
			plate := *e.LicensePlate
			if len(plate) < len(normalized) || plate[:len(normalized)] != normalized {
				continue
			}

			sighting, ok := byPlate[plate]
			if !ok {
				sighting = &PlateSighting{Plate: plate, EntityType: string(e.Type)}
				byPlate[plate] = sighting
			}
			if !containsID(sighting.AccidentIDs, rec.ID) {
				sighting.AccidentIDs = append(sighting.AccidentIDs, rec.ID)
			}
			if rec.Timestamp.After(sighting.LastSeen) {
				sighting.LastSeen = rec.Timestamp
			}
		}
	}

	result := make([]PlateSighting, 0, len(byPlate))
	for _, sighting := range byPlate {
		result = append(result, *sighting)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Plate < result[j].Plate })

	s.log.Debug().
		Str("query", normalized).
		Int("plates", len(result)).
		Msg("plate lookup")
	return result, nil
}

func hasPlate(rec accident.Record, normalized string) bool {
	for _, e := range rec.Entities {
		if e.LicensePlate != nil && *e.LicensePlate == normalized {
			return true
		}
	}
	return false
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
