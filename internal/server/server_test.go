package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mspro-labs/cfe-tariffs/internal/db"
	"mspro-labs/cfe-tariffs/internal/jobs"
	"mspro-labs/cfe-tariffs/internal/models"
	"mspro-labs/cfe-tariffs/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db     *sql.DB
	runner *jobs.Runner
	outDir string
	router *gin.Engine
}

func newFixture(t *testing.T, scrape jobs.ScrapeFunc) *fixture {
	t.Helper()
	database, err := db.Connect(filepath.Join(t.TempDir(), "cfe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	out := t.TempDir()
	if scrape == nil {
		scrape = func(context.Context, string, bool) error { return nil }
	}
	runner := jobs.NewRunner(context.Background(), database, out, scrape)
	t.Cleanup(runner.Wait)
	return &fixture{db: database, runner: runner, outDir: out, router: NewServer(database, runner, out).SetupRouter()}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestStartAndStatus(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/scrape/start", `{"headless": true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var started map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, models.RunQueued, started["status"])
	require.NotEmpty(t, started["run_id"])

	f.runner.Wait()
	w = f.do(http.MethodGet, "/scrape/status/"+started["run_id"], "")
	require.Equal(t, http.StatusOK, w.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, started["run_id"], run.ID)
	assert.Equal(t, models.RunSucceeded, run.Status)
}

func TestStartWithoutBody(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/scrape/start", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestStartRejectsBadBody(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/scrape/start", `{"headless": "yes"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverlappingStartConflicts(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(context.Context, string, bool) error {
		<-release
		return nil
	})
	defer close(release)

	w := f.do(http.MethodPost, "/scrape/start", `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = f.do(http.MethodPost, "/scrape/start", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUnknownRun(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/scrape/status/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadsWithoutData(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/download/english-json", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/download/english-excel", "").Code)
}

func TestDownloads(t *testing.T) {
	f := newFixture(t, nil)
	backend, err := store.NewJSONDir(f.outDir)
	require.NoError(t, err)
	require.NoError(t, backend.Save(store.EnglishFile, []models.TariffRecord{{ID: "a", Region: "SONORA", Year: "2025", Month: 1}}))

	w := f.do(http.MethodGet, "/download/english-json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), store.EnglishFile)
	var got []models.TariffRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 1)

	w = f.do(http.MethodGet, "/download/english-excel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "english_tariff_latest.xlsx")
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"), "xlsx is a zip archive")
}

func TestRecordsAndFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := db.InsertTariffs(ctx, f.db, "run-1", []models.TariffRecord{
		{ID: "a", Region: "SONORA", Fare: "GDMTH"},
		{ID: "b", Region: "JALISCO", Fare: "GDMTH"},
		{ID: "c", Region: "SONORA", Fare: "DIT"},
	})
	require.NoError(t, err)
	_, err = db.InsertFailures(ctx, f.db, "run-1", []models.FailureRecord{
		{Timestamp: "t1", Error: "no data extracted"},
		{Timestamp: "t2", Error: "no divisions available"},
	})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/records?region=SONORA&fare=GDMTH", "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []db.StoredRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)

	w = f.do(http.MethodGet, "/records?region=NOWHERE", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(http.MethodGet, "/failures?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var failures []db.StoredFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failures))
	require.Len(t, failures, 1)
	assert.Equal(t, "no divisions available", failures[0].Error)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/failures?limit=abc", "").Code)
}
