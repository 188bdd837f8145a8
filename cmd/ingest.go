package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mspro-labs/cfe-tariffs/internal/db"
	"mspro-labs/cfe-tariffs/internal/ingest"
)

var (
	ingestDir   string
	ingestRunID string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the English JSON and failure log into the database",
	Long:  `Merges the consolidated English records (deduplicated by record id) and the failure log of an output directory into SQLite. Safe to repeat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		dir := appCfg.OutputDir
		if ingestDir != "" {
			dir = ingestDir
		}

		database, err := db.Connect(appCfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		res, err := ingest.Run(context.Background(), database, ingestRunID, dir)
		if err != nil {
			return err
		}
		log.Infof("Ingested %d new records (of %d) and %d new failures (of %d).",
			res.NewRecords, res.Records, res.NewFailures, res.Failures)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Output directory to read (overrides OUTPUT_DIR)")
	ingestCmd.Flags().StringVar(&ingestRunID, "run-id", "", "Run id to tag the ingested rows with")
	rootCmd.AddCommand(ingestCmd)
}
