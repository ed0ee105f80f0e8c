package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
)

const severityOrder = `CASE severity WHEN 'Severe' THEN 3 WHEN 'Moderate' THEN 2 WHEN 'Minor' THEN 1 ELSE 0 END DESC`

// AccidentRepository stores records in a gorm database. The record id is
// supplied by the caller and used as the primary key.
type AccidentRepository struct {
	db *gorm.DB
}

func NewAccidentRepository(db *gorm.DB) *AccidentRepository {
	return &AccidentRepository{db: db}
}

type Accident struct {
	ID               string    `gorm:"primaryKey"`
	Timestamp        time.Time `gorm:"not null;index"`
	Result           string    `gorm:"not null"`
	Severity         *string
	Entities         datatypes.JSON
	CollageReference *string
	ProcessingTime   *float64
	CreatedAt        time.Time
}

func (Accident) TableName() string {
	return "accidents"
}

func (r *AccidentRepository) Save(ctx context.Context, record *accident.Record) (string, error) {
	row, err := toRow(record)
	if err != nil {
		return "", err
	}
	row.CreatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

func (r *AccidentRepository) List(ctx context.Context, sortBySeverity bool) ([]accident.Record, error) {
	query := r.db.WithContext(ctx).Model(&Accident{})
	if sortBySeverity {
		query = query.Order(severityOrder)
	}
	query = query.Order("timestamp DESC")

	var rows []Accident
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]accident.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *AccidentRepository) Get(ctx context.Context, id string) (*accident.Record, error) {
	var row Accident
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *AccidentRepository) Backend() string {
	return BackendPostgres
}

func toRow(record *accident.Record) (Accident, error) {
	row := Accident{
		ID:               record.ID,
		Timestamp:        record.Timestamp,
		Result:           string(record.Result),
		CollageReference: record.CollageReference,
		ProcessingTime:   record.ProcessingTime,
	}
	if record.Severity != nil {
		sev := string(*record.Severity)
		row.Severity = &sev
	}
	if record.Entities != nil {
		raw, err := json.Marshal(record.Entities)
		if err != nil {
			return Accident{}, fmt.Errorf("failed to encode entities: %w", err)
		}
		row.Entities = datatypes.JSON(raw)
	}
	return row, nil
}

func (a Accident) toDomain() (accident.Record, error) {
	rec := accident.Record{
		ID:               a.ID,
		Timestamp:        a.Timestamp.UTC(),
		Result:           accident.Result(a.Result),
		CollageReference: a.CollageReference,
		ProcessingTime:   a.ProcessingTime,
	}
	if a.Severity != nil {
		sev := accident.Severity(*a.Severity)
		rec.Severity = &sev
	}
	if len(a.Entities) > 0 {
		if err := json.Unmarshal(a.Entities, &rec.Entities); err != nil {
			return accident.Record{}, fmt.Errorf("failed to decode entities of %s: %w", a.ID, err)
		}
	}
	return rec, nil
}
