package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
)

var ErrNotFound = errors.New("record not found")

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Store persists accident records. Implementations must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, record *accident.Record) (string, error)
	List(ctx context.Context, sortBySeverity bool) ([]accident.Record, error)
	Get(ctx context.Context, id string) (*accident.Record, error)
	Backend() string
}

// SortRecords orders records newest first, or by severity rank and then
// newest first when bySeverity is set.
func SortRecords(records []accident.Record, bySeverity bool) {
	sort.SliceStable(records, func(i, j int) bool {
		if bySeverity {
			ri, rj := severityRank(records[i]), severityRank(records[j])
			if ri != rj {
				return ri > rj
			}
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}

func severityRank(r accident.Record) int {
	if r.Severity == nil {
		return 0
	}
	return r.Severity.Rank()
}
