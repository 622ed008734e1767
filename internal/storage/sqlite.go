//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"clustenm/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Reset empties every table. The schema stays in place.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		DELETE FROM run_parameters;
		DELETE FROM generations;
		DELETE FROM ensembles;
		DELETE FROM domain_assignments;
	`)
	return err
}

func (s *SQLiteStore) SaveRunParameters(ctx context.Context, params model.RunParameters) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRunParameters(params)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO run_parameters (run_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, params.RunID, params.SchemaVersion, params.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRunParameters(ctx context.Context, runID string) (model.RunParameters, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunParameters{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM run_parameters WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunParameters{}, false, nil
		}
		return model.RunParameters{}, false, err
	}

	params, err := DecodeRunParameters(payload)
	if err != nil {
		return model.RunParameters{}, false, fmt.Errorf("decode run parameters %s: %w", runID, err)
	}
	return params, true, nil
}

func (s *SQLiteStore) SaveGeneration(ctx context.Context, runID string, record model.GenerationRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeGeneration(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (run_id, generation, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, runID, record.Generation, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetGeneration(ctx context.Context, runID string, generation int) (model.GenerationRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.GenerationRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM generations WHERE run_id = ? AND generation = ?`, runID, generation).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.GenerationRecord{}, false, nil
		}
		return model.GenerationRecord{}, false, err
	}

	record, err := DecodeGeneration(payload)
	if err != nil {
		return model.GenerationRecord{}, false, fmt.Errorf("decode generation %d of %s: %w", generation, runID, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListGenerations(ctx context.Context, runID string) ([]model.GenerationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM generations WHERE run_id = ? ORDER BY generation`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.GenerationRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		record, err := DecodeGeneration(payload)
		if err != nil {
			return nil, fmt.Errorf("decode generation of %s: %w", runID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) SaveEnsemble(ctx context.Context, runID string, record model.EnsembleRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeEnsemble(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO ensembles (run_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, runID, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetEnsemble(ctx context.Context, runID string) (model.EnsembleRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.EnsembleRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM ensembles WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EnsembleRecord{}, false, nil
		}
		return model.EnsembleRecord{}, false, err
	}

	record, err := DecodeEnsemble(payload)
	if err != nil {
		return model.EnsembleRecord{}, false, fmt.Errorf("decode ensemble %s: %w", runID, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) SaveDomainAssignment(ctx context.Context, assignment model.DomainAssignment) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeDomainAssignment(assignment)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO domain_assignments (run_id, strategy, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, strategy) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, assignment.RunID, assignment.Strategy, assignment.SchemaVersion, assignment.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetDomainAssignment(ctx context.Context, runID, strategy string) (model.DomainAssignment, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.DomainAssignment{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM domain_assignments WHERE run_id = ? AND strategy = ?`, runID, strategy).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DomainAssignment{}, false, nil
		}
		return model.DomainAssignment{}, false, err
	}

	assignment, err := DecodeDomainAssignment(payload)
	if err != nil {
		return model.DomainAssignment{}, false, fmt.Errorf("decode domain assignment %s/%s: %w", runID, strategy, err)
	}
	return assignment, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_parameters (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
		CREATE TABLE IF NOT EXISTS ensembles (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS domain_assignments (
			run_id TEXT NOT NULL,
			strategy TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, strategy)
		);
	`)
	return err
}
