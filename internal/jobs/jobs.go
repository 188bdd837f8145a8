package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mspro-labs/cfe-tariffs/internal/db"
	"mspro-labs/cfe-tariffs/internal/export"
	"mspro-labs/cfe-tariffs/internal/ingest"
	"mspro-labs/cfe-tariffs/internal/models"
)

var logger = log.WithField("component", "jobs")

// ErrRunActive is returned by Start while another run is in progress.
var ErrRunActive = errors.New("a scrape run is already active")

// Request describes one scrape run. An empty OutputDir uses the runner's default.
type Request struct {
	Headless  bool   `json:"headless"`
	OutputDir string `json:"output_dir"`
}

// ScrapeFunc performs the traversal into outDir.
type ScrapeFunc func(ctx context.Context, outDir string, headless bool) error

// Runner executes scrape runs one at a time in the background and keeps
// their status in the database.
type Runner struct {
	db         *sql.DB
	scrape     ScrapeFunc
	defaultOut string
	base       context.Context

	mu     sync.Mutex
	active string
	wg     sync.WaitGroup
}

// NewRunner returns a runner whose jobs stop when ctx is cancelled.
func NewRunner(ctx context.Context, database *sql.DB, defaultOut string, scrape ScrapeFunc) *Runner {
	return &Runner{db: database, scrape: scrape, defaultOut: defaultOut, base: ctx}
}

// Start queues a run and returns its id. Only one run may be active.
func (r *Runner) Start(req Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != "" {
		return r.active, ErrRunActive
	}

	id := uuid.NewString()
	if err := db.CreateRun(r.db, id); err != nil {
		return "", err
	}
	if req.OutputDir == "" {
		req.OutputDir = r.defaultOut
	}
	r.active = id
	r.wg.Add(1)
	go r.execute(id, req)
	logger.WithFields(log.Fields{"run_id": id, "output_dir": req.OutputDir}).Info("Run queued")
	return id, nil
}

// Active returns the id of the run in progress, if any.
func (r *Runner) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Wait blocks until every started run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(id string, req Request) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		r.active = ""
		r.mu.Unlock()
	}()

	entry := logger.WithField("run_id", id)
	err := r.pipeline(id, req)

	status, message := models.RunSucceeded, "Scrape completed."
	if err != nil {
		status, message = models.RunFailed, err.Error()
		entry.Errorf("Run failed: %v", err)
	} else {
		entry.Info("Run succeeded")
	}
	if err := db.SetRunStatus(r.db, id, status, message); err != nil {
		entry.Errorf("Failed to record run status: %v", err)
	}
}

// pipeline is scrape, ingest, export. A panic anywhere fails the run.
func (r *Runner) pipeline(id string, req Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()

	if err := db.SetRunStatus(r.db, id, models.RunRunning, ""); err != nil {
		return err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.scrape(r.base, req.OutputDir, req.Headless); err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	// A cancelled scrape still leaves consistent files; load them regardless.
	if _, err := ingest.Run(context.WithoutCancel(r.base), r.db, id, req.OutputDir); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if _, _, err := export.FromOutputDir(req.OutputDir); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
