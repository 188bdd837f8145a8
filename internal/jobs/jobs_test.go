package jobs

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mspro-labs/cfe-tariffs/internal/db"
	"mspro-labs/cfe-tariffs/internal/export"
	"mspro-labs/cfe-tariffs/internal/models"
	"mspro-labs/cfe-tariffs/internal/store"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Connect(filepath.Join(t.TempDir(), "cfe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// writingScrape stands in for the browser run by writing a tiny output set.
func writingScrape() ScrapeFunc {
	return func(_ context.Context, outDir string, _ bool) error {
		backend, err := store.NewJSONDir(outDir)
		if err != nil {
			return err
		}
		if err := backend.Save(store.EnglishFile, []models.TariffRecord{
			{ID: "SONORA_HERMOSILLO_Norte_2025_1_1", Region: "SONORA", Year: "2025", Month: 1, Fare: "GDMTH"},
		}); err != nil {
			return err
		}
		return backend.Save(store.FailuresFile, []models.FailureRecord{
			{Timestamp: "2025-01-15 09:30:00", FareType: "GDMTH", Region: "SONORA", Error: "no data extracted"},
		})
	}
}

func TestRunSucceeds(t *testing.T) {
	database := openDB(t)
	out := t.TempDir()
	r := NewRunner(context.Background(), database, out, writingScrape())

	id, err := r.Start(Request{Headless: true})
	require.NoError(t, err)
	r.Wait()

	run, err := db.GetRun(database, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Equal(t, "Scrape completed.", run.Message)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, r.Active())

	records, err := db.ListRecords(database, db.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].RunID)
	assert.FileExists(t, filepath.Join(out, export.WorkbookFile))
}

func TestRunIngestsAfterShutdownCancelsScrape(t *testing.T) {
	database := openDB(t)
	out := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scrape := writingScrape()
	r := NewRunner(ctx, database, out, func(ctx context.Context, outDir string, headless bool) error {
		err := scrape(ctx, outDir, headless)
		cancel()
		return err
	})

	id, err := r.Start(Request{})
	require.NoError(t, err)
	r.Wait()

	run, err := db.GetRun(database, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, run.Status, run.Message)

	records, err := db.ListRecords(database, db.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.FileExists(t, filepath.Join(out, export.WorkbookFile))
}

func TestRunUsesRequestedOutputDir(t *testing.T) {
	database := openDB(t)
	def, custom := t.TempDir(), filepath.Join(t.TempDir(), "custom")
	var got string
	r := NewRunner(context.Background(), database, def, func(_ context.Context, outDir string, _ bool) error {
		got = outDir
		return nil
	})

	_, err := r.Start(Request{OutputDir: custom})
	require.NoError(t, err)
	r.Wait()
	assert.Equal(t, custom, got)
	assert.FileExists(t, filepath.Join(custom, export.WorkbookFile))
}

func TestRunFailureIsRecorded(t *testing.T) {
	database := openDB(t)
	r := NewRunner(context.Background(), database, t.TempDir(), func(context.Context, string, bool) error {
		return errors.New("failed to launch browser")
	})

	id, err := r.Start(Request{})
	require.NoError(t, err)
	r.Wait()

	run, err := db.GetRun(database, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.Message, "failed to launch browser")
}

func TestRunPanicIsRecorded(t *testing.T) {
	database := openDB(t)
	r := NewRunner(context.Background(), database, t.TempDir(), func(context.Context, string, bool) error {
		panic("browser crashed")
	})

	id, err := r.Start(Request{})
	require.NoError(t, err)
	r.Wait()

	run, err := db.GetRun(database, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.Message, "browser crashed")
}

func TestOverlappingStartIsRejected(t *testing.T) {
	database := openDB(t)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	r := NewRunner(context.Background(), database, t.TempDir(), func(context.Context, string, bool) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	first, err := r.Start(Request{})
	require.NoError(t, err)
	<-started

	active, err := r.Start(Request{})
	assert.ErrorIs(t, err, ErrRunActive)
	assert.Equal(t, first, active)

	run, err := db.GetRun(database, first)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)

	close(release)
	r.Wait()

	_, err = r.Start(Request{})
	require.NoError(t, err, "a new run may start once the previous one finished")
	r.Wait()
}
