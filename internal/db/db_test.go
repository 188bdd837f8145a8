package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mspro-labs/cfe-tariffs/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Connect(filepath.Join(t.TempDir(), "cfe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func record(id, region, fare string) models.TariffRecord {
	return models.TariffRecord{
		ID: id, Region: region, Municipality: "MEXICALI", Division: "Baja California",
		Year: "2025", Month: 1, MonthName: "JANUARY", ExtractedAt: "2025-01-15 09:30:00",
		Fare: fare, Post: "Fixed", Units: "$/month", TariffValue: "1234.56",
	}
}

func TestRunLifecycle(t *testing.T) {
	database := openTestDB(t)

	require.NoError(t, CreateRun(database, "run-1"))
	run, err := GetRun(database, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunQueued, run.Status)
	assert.Nil(t, run.StartedAt)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, SetRunStatus(database, "run-1", models.RunRunning, ""))
	run, err = GetRun(database, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)
	require.NotNil(t, run.StartedAt)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, SetRunStatus(database, "run-1", models.RunSucceeded, "Scrape completed."))
	run, err = GetRun(database, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Equal(t, "Scrape completed.", run.Message)
	require.NotNil(t, run.FinishedAt)
	assert.False(t, run.FinishedAt.Before(*run.StartedAt))
}

func TestUnknownRun(t *testing.T) {
	database := openTestDB(t)

	_, err := GetRun(database, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, SetRunStatus(database, "missing", models.RunFailed, "x"), ErrNotFound)
}

func TestInsertTariffsDeduplicates(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	first := []models.TariffRecord{record("a_1", "BAJA CALIFORNIA", "GDMTH"), record("a_2", "BAJA CALIFORNIA", "GDMTH")}
	n, err := InsertTariffs(ctx, database, "run-1", first)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	second := append(first, record("b_1", "SONORA", "GDMTO"), models.TariffRecord{})
	n, err = InsertTariffs(ctx, database, "run-2", second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only the unseen id is inserted, the id-less row is skipped")

	all, err := ListRecords(database, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b_1", all[0].ID, "newest first")
	assert.Equal(t, "run-2", all[0].RunID)
	assert.Equal(t, "run-1", all[2].RunID)
	assert.Equal(t, record("a_1", "BAJA CALIFORNIA", "GDMTH"), all[2].TariffRecord)
}

func TestInsertTariffsKeepsSameIDUnderAnotherFare(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	n, err := InsertTariffs(ctx, database, "run-1", []models.TariffRecord{
		record("a_1", "BAJA CALIFORNIA", "GDMTH"),
		record("a_1", "BAJA CALIFORNIA", "GDMTO"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = InsertTariffs(ctx, database, "run-2", []models.TariffRecord{record("a_1", "BAJA CALIFORNIA", "GDMTO")})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := ListRecords(database, RecordFilter{Fare: "GDMTO"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
}

func TestListRecordsFilters(t *testing.T) {
	database := openTestDB(t)
	_, err := InsertTariffs(context.Background(), database, "run-1", []models.TariffRecord{
		record("a_1", "BAJA CALIFORNIA", "GDMTH"),
		record("a_2", "BAJA CALIFORNIA", "GDMTO"),
		record("b_1", "SONORA", "GDMTH"),
	})
	require.NoError(t, err)

	got, err := ListRecords(database, RecordFilter{Region: "BAJA CALIFORNIA"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = ListRecords(database, RecordFilter{Region: "BAJA CALIFORNIA", Fare: "GDMTH"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a_1", got[0].ID)

	got, err = ListRecords(database, RecordFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = ListRecords(database, RecordFilter{Division: "nowhere"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFailures(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	log := []models.FailureRecord{
		{Timestamp: "2025-01-15 09:30:00", FareType: "GDMTH", Region: "N/A", Municipality: "N/A", Division: "N/A", Year: "2025", Month: 1, Error: "Failed to select month"},
		{Timestamp: "2025-01-15 09:31:00", FareType: "GDMTH", Region: "SONORA", Municipality: "HERMOSILLO", Division: "N/A", Year: "2025", Month: 2, Error: "no divisions available"},
	}
	n, err := InsertFailures(ctx, database, "run-1", log)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Re-ingesting the same log only adds the entry appended since.
	log = append(log, models.FailureRecord{Timestamp: "2025-01-16 10:00:00", FareType: "DIT", Year: "2025", Month: 3, Error: "no data extracted"})
	n, err = InsertFailures(ctx, database, "run-2", log)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := ListFailures(database, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "no data extracted", got[0].Error)
	assert.Equal(t, "run-2", got[0].RunID)
	assert.Equal(t, log[0], got[2].FailureRecord)

	got, err = ListFailures(database, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
