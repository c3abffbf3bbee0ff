package scheduler

import (
	"context"
	"sync"
	"testing"

	"gee2dhis2/internal/database"
	"gee2dhis2/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (f *fakeRunner) RunRule(ctx context.Context, ruleID, profileID string, dryRun bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, ruleID)
	return f.err
}

func setupTestService(t *testing.T) (*Service, *fakeRunner) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	runner := &fakeRunner{}
	return New(db, runner), runner
}

func TestNormalizeCron(t *testing.T) {
	t.Run("Should convert 5-field to 6-field cron", func(t *testing.T) {
		tests := []struct {
			name     string
			input    string
			expected string
		}{
			{name: "Daily at 2 AM", input: "0 2 * * *", expected: "0 0 2 * * *"},
			{name: "Every 15 minutes", input: "*/15 * * * *", expected: "0 */15 * * * *"},
			{name: "Every Monday at 9 AM", input: "0 9 * * 1", expected: "0 0 9 * * 1"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			})
		}
	})

	t.Run("Should keep 6-field cron unchanged", func(t *testing.T) {
		result, err := normalizeCron("30 0 2 * * 1")
		require.NoError(t, err)
		assert.Equal(t, "30 0 2 * * 1", result)
	})

	t.Run("Should fail with invalid field count", func(t *testing.T) {
		for _, input := range []string{"0 2 * *", "0 0 2 * * * 2025", "", "*"} {
			_, err := normalizeCron(input)
			assert.Error(t, err, "input %q", input)
			assert.Contains(t, err.Error(), "invalid cron expression")
		}
	})
}

func TestJobLifecycle(t *testing.T) {
	t.Run("Should create a job with a computed next run", func(t *testing.T) {
		svc, _ := setupTestService(t)

		id, err := svc.UpsertJob(&models.ScheduledJob{
			Name:      "nightly",
			RuleID:    "rule-1",
			ProfileID: "profile-1",
			Cron:      "0 2 * * *",
			Enabled:   true,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "0 0 2 * * *", jobs[0].Cron)
		assert.Equal(t, "UTC", jobs[0].Timezone)
		require.NotNil(t, jobs[0].NextRunAt)
	})

	t.Run("Should update an existing job by name", func(t *testing.T) {
		svc, _ := setupTestService(t)

		first, err := svc.UpsertJob(&models.ScheduledJob{
			Name: "nightly", RuleID: "rule-1", ProfileID: "profile-1", Cron: "0 2 * * *", Enabled: true,
		})
		require.NoError(t, err)

		second, err := svc.UpsertJob(&models.ScheduledJob{
			Name: "nightly", RuleID: "rule-2", ProfileID: "profile-1", Cron: "0 3 * * *", DryRun: true, Enabled: true,
		})
		require.NoError(t, err)
		assert.Equal(t, first, second)

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "rule-2", jobs[0].RuleID)
		assert.True(t, jobs[0].DryRun)
	})

	t.Run("Should reject incomplete jobs", func(t *testing.T) {
		svc, _ := setupTestService(t)

		_, err := svc.UpsertJob(&models.ScheduledJob{Name: "nameless", Cron: "0 2 * * *"})
		assert.Error(t, err)
	})

	t.Run("Should reject an invalid cron expression", func(t *testing.T) {
		svc, _ := setupTestService(t)

		_, err := svc.UpsertJob(&models.ScheduledJob{
			Name: "broken", RuleID: "rule-1", ProfileID: "profile-1", Cron: "not a cron",
		})
		assert.Error(t, err)
	})

	t.Run("Should delete a job", func(t *testing.T) {
		svc, _ := setupTestService(t)

		id, err := svc.UpsertJob(&models.ScheduledJob{
			Name: "doomed", RuleID: "rule-1", ProfileID: "profile-1", Cron: "0 2 * * *", Enabled: true,
		})
		require.NoError(t, err)
		require.NoError(t, svc.DeleteJob(id))

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestExecuteJob(t *testing.T) {
	t.Run("Should run the rule and stamp run times", func(t *testing.T) {
		svc, runner := setupTestService(t)

		id, err := svc.UpsertJob(&models.ScheduledJob{
			Name: "nightly", RuleID: "rule-1", ProfileID: "profile-1", Cron: "0 2 * * *", Enabled: true,
		})
		require.NoError(t, err)

		svc.executeJob(id)

		runner.mu.Lock()
		assert.Equal(t, []string{"rule-1"}, runner.runs)
		runner.mu.Unlock()

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.NotNil(t, jobs[0].LastRunAt)
	})
}
