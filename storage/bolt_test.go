package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolmuirgheasa/resquared-automation/models"
)

func openTestDB(t *testing.T) *BoltDB {
	t.Helper()
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunRoundTrip(t *testing.T) {
	db := openTestDB(t)
	finished := time.Now().UTC().Truncate(time.Millisecond)
	run := &models.CampaignRun{
		ID:      "run-1",
		Request: models.CampaignRequest{Prompt: "find pizza", TargetURL: "https://app.example.com", Username: "rep", Password: "hunter2"},
		Status:  models.RunFailed,
		Error:   "scripted fallback: fill failed",
		Steps: []models.AutomationStep{{
			Sequence: 1,
			Action:   models.Action{Kind: models.ActionClick, Locator: "[3]"},
			Outcome:  models.Failure(models.FailureTimeout, "not visible"),
			Duration: 2 * time.Second,
		}},
		UsedFallback: true,
		StartedAt:    finished.Add(-time.Minute),
		FinishedAt:   &finished,
	}
	require.NoError(t, db.SaveRun(run))

	got, err := db.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "******", got.Request.Password)
	assert.Equal(t, "hunter2", run.Request.Password, "caller's copy untouched")
	assert.Equal(t, run.Steps, got.Steps)
	assert.True(t, got.UsedFallback)
	assert.True(t, finished.Equal(*got.FinishedAt))
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.SaveRun(&models.CampaignRun{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = db.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSaveRunOverwrites(t *testing.T) {
	db := openTestDB(t)
	run := &models.CampaignRun{ID: "r", Status: models.RunRunning}
	require.NoError(t, db.SaveRun(run))
	run.Status = models.RunSucceeded
	require.NoError(t, db.SaveRun(run))

	got, err := db.GetRun("r")
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, got.Status)
}

func TestMissingRuns(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetRun("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteRun("nope"), ErrNotFound)
	assert.Error(t, db.SaveRun(&models.CampaignRun{}))

	require.NoError(t, db.SaveRun(&models.CampaignRun{ID: "x"}))
	require.NoError(t, db.DeleteRun("x"))
	_, err = db.GetRun("x")
	assert.ErrorIs(t, err, ErrNotFound)
}
