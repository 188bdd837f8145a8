package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mspro-labs/cfe-tariffs/internal/export"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Build the English Excel workbook from the JSON output",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		dir := appCfg.OutputDir
		if exportDir != "" {
			dir = exportDir
		}

		path, rows, err := export.FromOutputDir(dir)
		if err != nil {
			return err
		}
		log.Infof("Wrote %d rows to %s", rows, path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "Output directory to read and write (overrides OUTPUT_DIR)")
	rootCmd.AddCommand(exportCmd)
}
