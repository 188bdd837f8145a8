package scraper

import (
	"context"
	"fmt"

	"mspro-labs/cfe-tariffs/internal/config"
	"mspro-labs/cfe-tariffs/internal/store"
)

// ScrapeAll runs one full traversal into outDir. It returns an error only
// when the run could not start; node-level problems land in the failure log.
func ScrapeAll(ctx context.Context, site *config.SiteConfig, outDir string, headless bool, translator store.Translator) (Stats, error) {
	backend, err := store.NewJSONDir(outDir)
	if err != nil {
		return Stats{}, err
	}
	records, err := store.NewRecordStore(backend, translator, store.WithDedupe(site.DedupeIDs))
	if err != nil {
		return Stats{}, err
	}
	failures, err := store.NewFailureTracker(backend, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load failure log: %w", err)
	}

	logger.WithField("headless", headless).Info("Launching browser...")
	page, err := LaunchRod(headless, site.Timing.ElementWait, site.Timing.ReadyWait)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debugf("Ignoring browser close error: %v", err)
		}
	}()

	return Walk(ctx, site, page, records, failures)
}

// Walk runs the engine over an already acquired page.
func Walk(ctx context.Context, site *config.SiteConfig, page Page, records RecordSink, failures FailureSink) (Stats, error) {
	engine, err := NewEngine(site, NewNavigator(page, site), records, failures)
	if err != nil {
		return Stats{}, err
	}
	return engine.Run(ctx), nil
}
