package store

import (
	"time"

	log "github.com/sirupsen/logrus"

	"mspro-labs/cfe-tariffs/internal/models"
)

// FailureTracker owns the append-only failure log.
type FailureTracker struct {
	backend  Backend
	now      func() time.Time
	failures []models.FailureRecord
}

// NewFailureTracker loads the existing log; later failures are appended to it.
func NewFailureTracker(backend Backend, now func() time.Time) (*FailureTracker, error) {
	if now == nil {
		now = time.Now
	}
	t := &FailureTracker{backend: backend, now: now}
	if err := backend.Load(FailuresFile, &t.failures); err != nil {
		return nil, err
	}
	return t, nil
}

// Record appends one failure and flushes the whole log. Flush errors are only logged.
func (t *FailureTracker) Record(tc models.TraversalContext, message string) {
	t.failures = append(t.failures, models.FailureRecord{
		Timestamp:    t.now().Format(models.TimestampLayout),
		FareType:     tc.FareType,
		Region:       tc.Region,
		Municipality: tc.Municipality,
		Division:     tc.Division,
		Year:         tc.Year,
		Month:        tc.Month,
		Error:        message,
	})
	if err := t.backend.Save(FailuresFile, t.failures); err != nil {
		logger.WithError(err).Error("Failed to save failure log")
	}
	logger.WithFields(log.Fields{
		"fare":         tc.FareType,
		"year":         tc.Year,
		"month":        tc.Month,
		"region":       tc.Region,
		"municipality": tc.Municipality,
		"division":     tc.Division,
	}).Errorf("Failure tracked: %s", message)
}

// Failures returns a copy of the log.
func (t *FailureTracker) Failures() []models.FailureRecord {
	return append([]models.FailureRecord(nil), t.failures...)
}
