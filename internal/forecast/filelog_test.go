package forecast

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/internal/contracts"
)

func TestFileRepository_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log", "predictions.json")
	issue := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	repo, err := OpenFileRepository(path)
	require.NoError(t, err)

	rec := contracts.PredictionRecord{
		Horizon: contracts.Horizon7, IssueDate: issue, TargetDate: issue.AddDate(0, 0, 7),
		IssueValue: 1350, Predicted: 1360, CI80Low: 1340, CI80High: 1380, CI95Low: 1330, CI95High: 1390,
		LoggedAt: issue,
	}
	n, err := repo.AppendPredictions(ctx, []contracts.PredictionRecord{rec, rec})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.RecordActuals(ctx, []contracts.ActualRecord{{TargetDate: rec.TargetDate, Value: 1365, ObservedAt: issue.AddDate(0, 0, 8)}})
	require.NoError(t, err)

	reopened, err := OpenFileRepository(path)
	require.NoError(t, err)
	paired, err := reopened.ListPaired(ctx)
	require.NoError(t, err)
	require.Len(t, paired, 1)
	assert.Equal(t, 1365.0, paired[0].Actual)
	assert.Equal(t, 1360.0, paired[0].Predicted)

	removed, err := reopened.Prune(ctx, issue.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	again, err := OpenFileRepository(path)
	require.NoError(t, err)
	preds, _ := again.ListPredictions(ctx)
	assert.Empty(t, preds)
}

func TestFileRepository_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := OpenFileRepository(path)
	assert.Error(t, err)
}
