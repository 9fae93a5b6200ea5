package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/internal/contracts"
)

var (
	issueDay  = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	loggedAt  = time.Date(2024, 3, 4, 18, 5, 0, 0, time.UTC)
	predCols  = []string{"horizon", "issue_date", "target_date", "issue_value", "predicted", "ci80_low", "ci80_high", "ci95_low", "ci95_high", "run_id", "logged_at"}
	pairCols  = append(append([]string(nil), predCols...), "value")
	sampleRec = contracts.PredictionRecord{
		Horizon:    contracts.Horizon7,
		IssueDate:  issueDay,
		TargetDate: issueDay.AddDate(0, 0, 7),
		IssueValue: 1330,
		Predicted:  1336,
		CI80Low:    1320,
		CI80High:   1352,
		CI95Low:    1312,
		CI95High:   1360,
		RunID:      "run-1",
		LoggedAt:   loggedAt,
	}
)

func TestPostgresRepository_AppendPredictions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	second := sampleRec
	second.IssueDate = issueDay.AddDate(0, 0, 1)
	second.TargetDate = second.IssueDate.AddDate(0, 0, 7)

	mock.ExpectExec("INSERT INTO fxcast.predictions").
		WithArgs(7, issueDay, sampleRec.TargetDate, 1330.0, 1336.0, 1320.0, 1352.0, 1312.0, 1360.0, "run-1", loggedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// 같은 (horizon, issue_date) 재기록은 ON CONFLICT DO NOTHING
	mock.ExpectExec("INSERT INTO fxcast.predictions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	repo := NewPostgresRepository(mock)
	n, err := repo.AppendPredictions(context.Background(), []contracts.PredictionRecord{sampleRec, second})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AppendPredictionsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO fxcast.predictions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	_, err = NewPostgresRepository(mock).AppendPredictions(context.Background(), []contracts.PredictionRecord{sampleRec})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_RecordActuals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	target := issueDay.AddDate(0, 0, 7)
	mock.ExpectExec("INSERT INTO fxcast.actuals").
		WithArgs(target, 1341.5, loggedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := NewPostgresRepository(mock).RecordActuals(context.Background(), []contracts.ActualRecord{
		{TargetDate: target.Add(15 * time.Hour), Value: 1341.5, ObservedAt: loggedAt},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListPaired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(pairCols).
		AddRow(7, issueDay, issueDay.AddDate(0, 0, 7), 1330.0, 1336.0, 1320.0, 1352.0, 1312.0, 1360.0, "run-1", loggedAt, 1341.5).
		AddRow(15, issueDay, issueDay.AddDate(0, 0, 15), 1330.0, 1325.0, 1315.0, 1335.0, 1290.0, 1360.0, "run-1", loggedAt, 1310.0)
	mock.ExpectQuery("JOIN fxcast.actuals").WillReturnRows(rows)

	paired, err := NewPostgresRepository(mock).ListPaired(context.Background())
	require.NoError(t, err)
	require.Len(t, paired, 2)

	assert.Equal(t, contracts.Horizon7, paired[0].Horizon)
	assert.Equal(t, 1341.5, paired[0].Actual)
	assert.True(t, paired[0].DirectionHit())
	assert.True(t, paired[0].Within80())
	assert.Equal(t, contracts.Horizon15, paired[1].Horizon)
	assert.False(t, paired[1].Within80())
	assert.True(t, paired[1].Within95())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListPredictions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM fxcast.predictions p").
		WillReturnRows(pgxmock.NewRows(predCols).
			AddRow(30, issueDay, issueDay.AddDate(0, 0, 30), 1330.0, 1340.0, 1300.0, 1380.0, 1280.0, 1400.0, "", loggedAt))

	preds, err := NewPostgresRepository(mock).ListPredictions(context.Background())
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, contracts.Horizon30, preds[0].Horizon)
	assert.Equal(t, loggedAt, preds[0].LoggedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_MigrateAndPrune(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := issueDay.AddDate(-2, 0, 0)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS fxcast.predictions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("DELETE FROM fxcast.predictions").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM fxcast.actuals").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	repo := NewPostgresRepository(mock)
	require.NoError(t, repo.Migrate(context.Background()))

	n, err := repo.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
