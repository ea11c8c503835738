package commands

import (
	"edexport-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().Int("limit", 20, "The most entries to show.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--limit <n>]",
	Short: "Lists recent exports, newest first.",
	Run: func(cmd *cobra.Command, args []string) {
		store, closeStore := openStore(readConfig())
		defer closeStore()

		records, err := store.Recent(cmd.Context(), *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to list exports", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"When", "Portal", "Tenant", "Kind", "File"})
		for _, rec := range records {
			t.AppendRow(table.Row{
				rec.ExportedAt.Format("2006-01-02 15:04"),
				rec.Portal,
				rec.Tenant,
				rec.Kind,
				rec.File.Path,
			})
		}
		t.Render()
	},
}
