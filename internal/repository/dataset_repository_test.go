package repository

import (
	"context"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
)

func newMockRepo(t *testing.T) (*DatasetRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDatasetRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestGetBySessionDecodesPayload(t *testing.T) {
	repo, mock := newMockRepo(t)

	payload, err := json.Marshal(dto.Dataset{
		SessionID:       "11111111-1111-1111-1111-111111111111",
		ExamPeriodStart: "2026-03-02",
		ExamPeriodEnd:   "2026-03-06",
	})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT session_id, payload FROM prepared_datasets").
		WithArgs("11111111-1111-1111-1111-111111111111").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "payload"}).
			AddRow("11111111-1111-1111-1111-111111111111", payload))

	dataset, err := repo.GetBySession(context.Background(), "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", dataset.ExamPeriodStart)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBySessionNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT session_id, payload FROM prepared_datasets").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "payload"}))

	_, err := repo.GetBySession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSolutionUpserts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO timetable_solutions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveSolution(context.Background(), dto.SolutionDocument{
		SessionID: "11111111-1111-1111-1111-111111111111",
		Status:    "Optimal",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
