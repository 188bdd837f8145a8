package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mspro-labs/cfe-tariffs/internal/db"
)

var recordFilter db.RecordFilter

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List ingested English records, newest first",
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

		records, err := db.ListRecords(database, recordFilter)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Period", "Fare", "Region", "Municipality", "Division", "Post", "Units", "Value"})
		for _, r := range records {
			t.AppendRow(table.Row{r.Year + " " + r.MonthName, r.Fare, r.Region, r.Municipality, r.Division, r.Post, r.Units, r.TariffValue})
		}
		t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(records)})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

func init() {
	f := recordsCmd.Flags()
	f.IntVar(&recordFilter.Limit, "limit", db.DefaultLimit, "Maximum rows to show")
	f.StringVar(&recordFilter.Region, "region", "", "Only this region")
	f.StringVar(&recordFilter.Municipality, "municipality", "", "Only this municipality")
	f.StringVar(&recordFilter.Division, "division", "", "Only this division")
	f.StringVar(&recordFilter.Fare, "fare", "", "Only this fare type")
	rootCmd.AddCommand(recordsCmd)
}
