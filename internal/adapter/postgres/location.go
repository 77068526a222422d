package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	"github.com/Temutjin2k/location-relay/pkg/metrics"
	"github.com/Temutjin2k/location-relay/pkg/trm"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const metricsService = "location-relay"

// LocationRepo keeps the last known location of every driver.
type LocationRepo struct {
	db  *pgxpool.Pool
	trm trm.TxManager
}

func NewLocationRepo(db *pgxpool.Pool, trm trm.TxManager) *LocationRepo {
	return &LocationRepo{
		db:  db,
		trm: trm,
	}
}

// EnsureSchema creates the table and its index if they do not exist yet.
func (r *LocationRepo) EnsureSchema(ctx context.Context) error {
	const op = "LocationRepo.EnsureSchema"
	statements := []string{
		`CREATE TABLE IF NOT EXISTS driver_last_locations (
			driver_identity TEXT PRIMARY KEY,
			latitude        DOUBLE PRECISION NOT NULL,
			longitude       DOUBLE PRECISION NOT NULL,
			speed           DOUBLE PRECISION NOT NULL DEFAULT 0,
			heading         DOUBLE PRECISION NOT NULL DEFAULT 0,
			accuracy        DOUBLE PRECISION,
			recorded_at     TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS driver_last_locations_recorded_at_idx
			ON driver_last_locations (recorded_at);`,
	}

	err := r.trm.Do(ctx, func(ctx context.Context) error {
		for _, stmt := range statements {
			if _, err := TxorDB(ctx, r.db).Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// Save upserts event as the last location of its driver. An older event never
// overwrites a newer one.
func (r *LocationRepo) Save(ctx context.Context, event models.LocationEvent) (err error) {
	const op = "LocationRepo.Save"
	query := `
		INSERT INTO driver_last_locations(driver_identity, latitude, longitude, speed, heading, accuracy, recorded_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (driver_identity) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			speed = EXCLUDED.speed,
			heading = EXCLUDED.heading,
			accuracy = EXCLUDED.accuracy,
			recorded_at = EXCLUDED.recorded_at
		WHERE driver_last_locations.recorded_at <= EXCLUDED.recorded_at;`

	start := time.Now()
	defer func() { metrics.RecordDatabaseQuery(metricsService, "save_location", err, time.Since(start)) }()

	if _, err = TxorDB(ctx, r.db).Exec(ctx, query,
		event.DriverIdentity,
		event.Latitude,
		event.Longitude,
		event.Speed,
		event.Heading,
		event.Accuracy,
		event.Timestamp,
	); err != nil {
		ctx = wrap.WithDriverID(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed), event.DriverIdentity)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// Last returns the last stored location of identity or types.ErrLocationNotFound.
func (r *LocationRepo) Last(ctx context.Context, identity string) (models.LocationEvent, error) {
	const op = "LocationRepo.Last"
	query := `
		SELECT driver_identity, latitude, longitude, speed, heading, accuracy, recorded_at
		FROM driver_last_locations
		WHERE driver_identity = $1;`

	start := time.Now()

	var event models.LocationEvent
	err := TxorDB(ctx, r.db).QueryRow(ctx, query, identity).Scan(
		&event.DriverIdentity,
		&event.Latitude,
		&event.Longitude,
		&event.Speed,
		&event.Heading,
		&event.Accuracy,
		&event.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RecordDatabaseQuery(metricsService, "last_location", nil, time.Since(start))
		return models.LocationEvent{}, types.ErrLocationNotFound
	}
	metrics.RecordDatabaseQuery(metricsService, "last_location", err, time.Since(start))
	if err != nil {
		ctx = wrap.WithDriverID(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed), identity)
		return models.LocationEvent{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	event.Timestamp = event.Timestamp.UTC()
	return event, nil
}
