// Package store persists query results in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/railticket-query/internal/common/db"
	"github.com/railticket-query/pkg/ticket/models"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS railquery;

CREATE TABLE IF NOT EXISTS railquery.query_runs (
	run_id       BIGSERIAL PRIMARY KEY,
	from_station TEXT NOT NULL,
	to_station   TEXT NOT NULL,
	from_code    TEXT NOT NULL,
	to_code      TEXT NOT NULL,
	train_date   TEXT NOT NULL,
	via_station  TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS railquery.train_records (
	run_id         BIGINT NOT NULL REFERENCES railquery.query_runs(run_id) ON DELETE CASCADE,
	position       INT NOT NULL,
	train_no       TEXT NOT NULL,
	train_code     TEXT NOT NULL,
	train_type     TEXT NOT NULL,
	from_station   TEXT NOT NULL,
	to_station     TEXT NOT NULL,
	departure_time TEXT,
	arrival_time   TEXT,
	duration       TEXT,
	seats          JSONB NOT NULL,
	stops          TEXT[],
	PRIMARY KEY (run_id, position)
);
`

// Run is one completed query and its trains.
type Run struct {
	FromStation string
	ToStation   string
	FromCode    string
	ToCode      string
	Date        string
	ViaStation  string
	Trains      []models.TrainRecord
}

type RecordStore struct {
	db *db.DB
}

func NewRecordStore(database *db.DB) *RecordStore {
	return &RecordStore{db: database}
}

// Migrate creates the schema if it does not exist.
func (s *RecordStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// SaveRun stores a run and its trains in one transaction and returns the run id.
func (s *RecordStore) SaveRun(ctx context.Context, run Run) (int64, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var runID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO railquery.query_runs (from_station, to_station, from_code, to_code, train_date, via_station)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING run_id
	`, run.FromStation, run.ToStation, run.FromCode, run.ToCode, run.Date, run.ViaStation).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO railquery.train_records (
			run_id, position, train_no, train_code, train_type, from_station, to_station,
			departure_time, arrival_time, duration, seats, stops
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, train := range run.Trains {
		args, err := recordArgs(runID, i, train)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("inserting train %s: %w", train.TrainCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	s.db.Logger().Info("Saved query run",
		"run_id", runID,
		"trains", len(run.Trains))
	return runID, nil
}

// PruneRuns deletes runs older than the given age and returns how many were removed.
func (s *RecordStore) PruneRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM railquery.query_runs WHERE created_at < $1",
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}

func recordArgs(runID int64, position int, r models.TrainRecord) ([]interface{}, error) {
	seats, err := json.Marshal(r.Seats)
	if err != nil {
		return nil, fmt.Errorf("encoding seats for %s: %w", r.TrainCode, err)
	}

	var stops interface{}
	if r.Stops != nil {
		names := make([]string, len(r.Stops))
		for i, s := range r.Stops {
			names[i] = s.StationName
		}
		stops = pq.Array(names)
	}

	return []interface{}{
		runID,
		position,
		r.TrainNo,
		r.TrainCode,
		string(r.TrainType),
		r.FromStation.StationName,
		r.ToStation.StationName,
		r.FromStation.DepartureTime,
		r.ToStation.ArrivalTime,
		r.Duration,
		seats,
		stops,
	}, nil
}
