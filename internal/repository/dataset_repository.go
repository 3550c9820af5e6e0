package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
)

// ErrDatasetNotFound marks a missing prepared dataset row.
var ErrDatasetNotFound = errors.New("prepared dataset not found")

// DatasetRepository loads prepared datasets from the institutional database. The
// backend stores each exam session's prepared payload as one JSON document, so a
// single row round-trips into the same shape the file-based CLI consumes.
type DatasetRepository struct {
	db *sqlx.DB
}

// NewDatasetRepository constructs the repository.
func NewDatasetRepository(db *sqlx.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

type datasetRow struct {
	SessionID string `db:"session_id"`
	Payload   []byte `db:"payload"`
}

// GetBySession returns the prepared dataset of an exam session.
func (r *DatasetRepository) GetBySession(ctx context.Context, sessionID string) (*dto.Dataset, error) {
	const query = `SELECT session_id, payload FROM prepared_datasets WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1`
	var row datasetRow
	if err := r.db.GetContext(ctx, &row, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("load prepared dataset: %w", err)
	}

	var dataset dto.Dataset
	if err := json.Unmarshal(row.Payload, &dataset); err != nil {
		return nil, fmt.Errorf("decode prepared dataset: %w", err)
	}
	if dataset.SessionID == "" {
		dataset.SessionID = row.SessionID
	}
	return &dataset, nil
}

// SaveSolution persists a solution document for the backend to pick up.
func (r *DatasetRepository) SaveSolution(ctx context.Context, doc dto.SolutionDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode solution: %w", err)
	}
	const query = `INSERT INTO timetable_solutions (session_id, status, payload, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET status = EXCLUDED.status,
		    payload = EXCLUDED.payload,
		    created_at = EXCLUDED.created_at`
	if _, err := r.db.ExecContext(ctx, query, doc.SessionID, doc.Status, payload); err != nil {
		return fmt.Errorf("persist solution: %w", err)
	}
	return nil
}
