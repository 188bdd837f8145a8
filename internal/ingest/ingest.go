package ingest

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"

	"mspro-labs/cfe-tariffs/internal/db"
	"mspro-labs/cfe-tariffs/internal/models"
	"mspro-labs/cfe-tariffs/internal/store"
)

var logger = log.WithField("component", "ingest")

// Result counts what an ingest read and what was new to the database.
type Result struct {
	Records     int
	NewRecords  int64
	Failures    int
	NewFailures int64
}

// Run merges the translated collection and the failure log found in outDir
// into the database. Re-running over the same files adds nothing.
func Run(ctx context.Context, database *sql.DB, runID, outDir string) (Result, error) {
	var res Result
	dir, err := store.NewJSONDir(outDir)
	if err != nil {
		return res, err
	}

	// 1. English records
	var records []models.TariffRecord
	if err := dir.Read(store.EnglishFile, &records); err != nil {
		return res, fmt.Errorf("failed to load English records: %w", err)
	}
	res.Records = len(records)
	if len(records) == 0 {
		logger.WithField("dir", outDir).Info("No English records to ingest")
	} else {
		res.NewRecords, err = db.InsertTariffs(ctx, database, runID, records)
		if err != nil {
			return res, fmt.Errorf("failed to store records: %w", err)
		}
	}

	// 2. Failure log
	var failures []models.FailureRecord
	if err := dir.Read(store.FailuresFile, &failures); err != nil {
		return res, fmt.Errorf("failed to load failure log: %w", err)
	}
	res.Failures = len(failures)
	if len(failures) > 0 {
		res.NewFailures, err = db.InsertFailures(ctx, database, runID, failures)
		if err != nil {
			return res, fmt.Errorf("failed to store failures: %w", err)
		}
	}

	logger.WithFields(log.Fields{
		"run_id":       runID,
		"records":      res.Records,
		"new_records":  res.NewRecords,
		"failures":     res.Failures,
		"new_failures": res.NewFailures,
	}).Info("Ingest finished")
	return res, nil
}
