package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mspro-labs/cfe-tariffs/internal/db"
)

var failuresLimit int

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List ingested failures, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Connect(appCfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		failures, err := db.ListFailures(database, failuresLimit)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"When", "Fare", "Period", "Region", "Municipality", "Division", "Error"})
		for _, f := range failures {
			t.AppendRow(table.Row{f.Timestamp, f.FareType, fmt.Sprintf("%s-%02d", f.Year, f.Month), f.Region, f.Municipality, f.Division, f.Error})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

func init() {
	failuresCmd.Flags().IntVar(&failuresLimit, "limit", db.DefaultLimit, "Maximum rows to show")
	rootCmd.AddCommand(failuresCmd)
}
