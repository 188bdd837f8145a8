package store

import (
	"context"
	"errors"
	"fmt"
	"path"

	log "github.com/sirupsen/logrus"

	"mspro-labs/cfe-tariffs/internal/models"
)

// Output document names, relative to the output directory.
const (
	SpanishFile  = "cfe_tariff_data_spanish.json"
	EnglishFile  = "cfe_tariff_data_english.json"
	FailuresFile = "failed_extractions.json"
	SnapshotDir  = "extraction"
)

// TargetLanguage is the language of the translated collection.
const TargetLanguage = "en"

// Translator is the best-effort text translation the store relies on.
type Translator interface {
	Translate(ctx context.Context, text, lang string) string
}

// RecordStore owns the consolidated original and translated collections.
type RecordStore struct {
	backend    Backend
	translator Translator
	dedupe     bool

	original   []models.TariffRecord
	translated []models.TariffRecord
	seen       map[string]struct{}
}

type RecordStoreOption func(*RecordStore)

// WithDedupe makes Append skip records whose fare and id are already stored.
func WithDedupe(on bool) RecordStoreOption {
	return func(s *RecordStore) { s.dedupe = on }
}

// NewRecordStore loads both consolidated collections so a run resumes where the last one stopped.
func NewRecordStore(backend Backend, translator Translator, opts ...RecordStoreOption) (*RecordStore, error) {
	s := &RecordStore{
		backend:    backend,
		translator: translator,
		seen:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := backend.Load(SpanishFile, &s.original); err != nil {
		return nil, fmt.Errorf("failed to load existing records: %w", err)
	}
	if err := backend.Load(EnglishFile, &s.translated); err != nil {
		return nil, fmt.Errorf("failed to load existing translated records: %w", err)
	}
	for _, r := range s.original {
		s.seen[seenKey(r)] = struct{}{}
	}
	logger.WithFields(log.Fields{
		"original":   len(s.original),
		"translated": len(s.translated),
	}).Info("Loaded existing records")
	return s, nil
}

// Append stores one leaf's batch: snapshot pair, then both consolidated
// collections flushed in full. It returns how many records were accepted.
// Memory is extended even when a flush fails; the returned error joins every
// failed write.
func (s *RecordStore) Append(ctx context.Context, records []models.TariffRecord, tc models.TraversalContext) (int, error) {
	if s.dedupe {
		records = s.unseen(records)
	}
	if len(records) == 0 {
		return 0, nil
	}

	translated := make([]models.TariffRecord, len(records))
	for i, r := range records {
		translated[i] = s.translateRecord(ctx, r)
	}

	var errs []error
	base := snapshotBase(tc)
	if err := s.backend.Save(base+"_spanish.json", records); err != nil {
		errs = append(errs, err)
	}
	if err := s.backend.Save(base+"_english.json", translated); err != nil {
		errs = append(errs, err)
	}

	s.original = append(s.original, records...)
	for _, r := range records {
		s.seen[seenKey(r)] = struct{}{}
	}
	if err := s.backend.Save(SpanishFile, s.original); err != nil {
		errs = append(errs, err)
	}

	s.translated = append(s.translated, translated...)
	if err := s.backend.Save(EnglishFile, s.translated); err != nil {
		errs = append(errs, err)
	}

	logger.WithFields(log.Fields{
		"new":   len(records),
		"total": len(s.original),
		"leaf":  tc.String(),
	}).Info("Appended records")
	return len(records), errors.Join(errs...)
}

// seenKey identifies a record across fares; the same location and period
// yields the same id under every fare.
func seenKey(r models.TariffRecord) string {
	return r.Fare + "|" + r.ID
}

func (s *RecordStore) unseen(records []models.TariffRecord) []models.TariffRecord {
	fresh := records[:0:0]
	for _, r := range records {
		if _, ok := s.seen[seenKey(r)]; ok {
			continue
		}
		fresh = append(fresh, r)
	}
	if skipped := len(records) - len(fresh); skipped > 0 {
		logger.WithField("skipped", skipped).Info("Skipped records already stored")
	}
	return fresh
}

func (s *RecordStore) translateRecord(ctx context.Context, r models.TariffRecord) models.TariffRecord {
	for _, field := range []*string{&r.Region, &r.Municipality, &r.Division, &r.Post, &r.Units, &r.MonthName} {
		*field = s.translator.Translate(ctx, *field, TargetLanguage)
	}
	return r
}

// Original returns a copy of the consolidated original-language collection.
func (s *RecordStore) Original() []models.TariffRecord {
	return append([]models.TariffRecord(nil), s.original...)
}

// Translated returns a copy of the consolidated translated collection.
func (s *RecordStore) Translated() []models.TariffRecord {
	return append([]models.TariffRecord(nil), s.translated...)
}

// snapshotBase is extraction/<region>/<municipality>/<fare>_<division>_<year>_<MM>.
func snapshotBase(tc models.TraversalContext) string {
	file := fmt.Sprintf("%s_%s_%s_%02d", SafeName(tc.FareType), SafeName(tc.Division), SafeName(tc.Year), tc.Month)
	return path.Join(SnapshotDir, SafeName(tc.Region), SafeName(tc.Municipality), file)
}
