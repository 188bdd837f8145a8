package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mspro-labs/cfe-tariffs/internal/config"
	"mspro-labs/cfe-tariffs/internal/db"
	"mspro-labs/cfe-tariffs/internal/export"
	"mspro-labs/cfe-tariffs/internal/ingest"
	"mspro-labs/cfe-tariffs/internal/jobs"
	"mspro-labs/cfe-tariffs/internal/scraper"
	"mspro-labs/cfe-tariffs/internal/translate"
)

var (
	scrapeOut      string
	scrapeHeadless bool
	scrapeIngest   bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Walk every fare, period and location once",
	Long: `Drives the CFE tariff pages through every fare type, period, region, municipality
and division, writing Spanish and English JSON plus a failure log. Interrupting the
run stops it cleanly; a later run resumes into the same files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape(cmd.Context())
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeOut, "out", "", "Output directory (overrides OUTPUT_DIR)")
	scrapeCmd.Flags().BoolVar(&scrapeHeadless, "headless", true, "Run the browser without a window")
	scrapeCmd.Flags().BoolVar(&scrapeIngest, "ingest", false, "Load results into the database and build the workbook afterwards")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Config
	appCfg, siteCfg, err := loadConfig()
	if err != nil {
		return err
	}
	outDir := appCfg.OutputDir
	if scrapeOut != "" {
		outDir = scrapeOut
	}

	// 2. Run Scraper
	if err := newScrapeFunc(appCfg, siteCfg)(ctx, outDir, scrapeHeadless); err != nil {
		return err
	}
	if !scrapeIngest {
		return nil
	}

	// 3. Optional ingest + export
	database, err := db.Connect(appCfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	res, err := ingest.Run(context.WithoutCancel(ctx), database, "", outDir)
	if err != nil {
		return err
	}
	path, rows, err := export.FromOutputDir(outDir)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"new_records":  res.NewRecords,
		"new_failures": res.NewFailures,
		"workbook":     path,
		"rows":         rows,
	}).Info("Results loaded")
	return nil
}

// newScrapeFunc binds the configured translator and site to a scrape run.
func newScrapeFunc(appCfg config.AppConfig, siteCfg *config.SiteConfig) jobs.ScrapeFunc {
	return func(ctx context.Context, outDir string, headless bool) error {
		translator, closeTranslator, err := translate.New(ctx, appCfg)
		if err != nil {
			return err
		}
		defer closeTranslator()

		stats, err := scraper.ScrapeAll(ctx, siteCfg, outDir, headless, translator)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"dir":      outDir,
			"leaves":   stats.Leaves,
			"records":  stats.Records,
			"failures": stats.Failures,
		}).Info("Scrape finished")
		return nil
	}
}
