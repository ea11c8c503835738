package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"edexport-backend/lib/filestore"
	"edexport-backend/lib/scrapers/oars"
	"edexport-backend/lib/serviceutil"
	"edexport-backend/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var oarsCmd = &cobra.Command{
	Use:   "oars",
	Short: "Exports from an ACER OARS assessment portal.",
}

var (
	oarsAllCandidates *bool
	oarsFrom          *string
	oarsTo            *string
	oarsTest          *string
	oarsForm          *string
)

func init() {
	oarsAllCandidates = oarsCandidatesCmd.Flags().Bool("all", false, "Include candidates that are no longer enrolled.")
	oarsFrom = oarsSittingsCmd.Flags().String("from", "", "The start of the sitting date range, as yyyy-mm-dd. Defaults to January 1st of the current year.")
	oarsTo = oarsSittingsCmd.Flags().String("to", "", "The end of the sitting date range, as yyyy-mm-dd. Defaults to today.")
	oarsTest = oarsSittingsCmd.Flags().String("test", "", "Export only this test, by name. Defaults to every PAT test.")
	oarsForm = oarsSittingsCmd.Flags().String("form", "", "Export only this form of --test, by name.")

	oarsCmd.AddCommand(oarsTestsCmd)
	oarsCmd.AddCommand(oarsCandidatesCmd)
	oarsCmd.AddCommand(oarsSittingsCmd)
	oarsCmd.AddCommand(oarsStaffCmd)
	rootCmd.AddCommand(oarsCmd)
}

func createOarsClient(ctx context.Context, cfg Config) *oars.Client {
	client, err := oars.NewClient(ctx, oars.Options{
		School: cfg.Oars.School,
	}, oars.Credentials{
		School:   cfg.Oars.School,
		Username: cfg.Oars.Username,
		Password: cfg.Oars.Password,
	})
	if err != nil {
		serviceutil.Fatal("failed to login to oars", err)
	}
	return client
}

func saveJsonExport(dir, name string, v any) filestore.File {
	contents, err := json.Marshal(v)
	if err != nil {
		serviceutil.Fatal("failed to encode export", err)
	}
	file, err := filestore.Save(contents, dir, name)
	if err != nil {
		serviceutil.Fatal("failed to save export", err)
	}
	return file
}

var oarsTestsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Lists the tests and forms the portal knows about.",
	Run: func(cmd *cobra.Command, args []string) {
		client := createOarsClient(cmd.Context(), readConfig())

		t := newTable()
		t.AppendHeader(table.Row{"Test", "Type", "Form"})
		for _, test := range client.Tests() {
			if len(test.Forms) == 0 {
				t.AppendRow(table.Row{test.Name, test.ReportType, ""})
				continue
			}
			for _, form := range test.Forms {
				t.AppendRow(table.Row{test.Name, test.ReportType, form.Name})
			}
		}
		t.Render()
	},
}

var oarsCandidatesCmd = &cobra.Command{
	Use:   "candidates [--all]",
	Short: "Exports the candidate roster as json.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		client := createOarsClient(ctx, cfg)
		store, closeStore := openStore(cfg)
		defer closeStore()

		candidates, err := client.Candidates(ctx, !*oarsAllCandidates)
		if err != nil {
			serviceutil.Fatal("failed to fetch candidates", err)
		}
		slog.Info("fetched candidates", "count", len(candidates))

		name := fmt.Sprintf("%s-candidates.json", cfg.Oars.School)
		file := saveJsonExport(cfg.ExportDir, name, candidates)
		recordExport(ctx, store, "oars", cfg.Oars.School, "candidates", file)
		slog.Info("saved", "path", file.Path)
	},
}

var oarsSittingsCmd = &cobra.Command{
	Use:   "sittings [--from <yyyy-mm-dd>] [--to <yyyy-mm-dd>] [--test <name> --form <name>]",
	Short: "Exports completed PAT sittings within a date range as json.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()

		var err error
		from := timezone.StartOfSchoolYear(timezone.Today())
		if *oarsFrom != "" {
			from, err = time.ParseInLocation("2006-01-02", *oarsFrom, timezone.Location)
			if err != nil {
				serviceutil.Fatal("failed to parse --from", err)
			}
		}
		to := timezone.Today()
		if *oarsTo != "" {
			to, err = time.ParseInLocation("2006-01-02", *oarsTo, timezone.Location)
			if err != nil {
				serviceutil.Fatal("failed to parse --to", err)
			}
		}

		client := createOarsClient(ctx, cfg)
		store, closeStore := openStore(cfg)
		defer closeStore()

		var sittings []oars.Sitting
		kind := "sittings"
		if *oarsTest == "" {
			sittings, err = client.AllPATSittings(ctx, from, to)
		} else {
			var test oars.Test
			test, err = client.Tests().FromName(*oarsTest)
			if err != nil {
				serviceutil.Fatal("failed to find test", err)
			}
			var form oars.Form
			form, err = test.FormFromName(*oarsForm)
			if err != nil {
				serviceutil.Fatal("failed to find form", err)
			}
			sittings, err = client.PATSittings(ctx, test, form, from, to)
		}
		if err != nil {
			serviceutil.Fatal("failed to fetch sittings", err)
		}
		slog.Info("fetched sittings", "count", len(sittings))

		name := fmt.Sprintf("%s-sittings.json", cfg.Oars.School)
		file := saveJsonExport(cfg.ExportDir, name, sittings)
		recordExport(ctx, store, "oars", cfg.Oars.School, kind, file)
		slog.Info("saved", "path", file.Path)
	},
}

var oarsStaffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Exports the staff spreadsheet.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		client := createOarsClient(ctx, cfg)
		store, closeStore := openStore(cfg)
		defer closeStore()

		file, err := client.ExportStaff(ctx, cfg.ExportDir)
		if err != nil {
			serviceutil.Fatal("failed to export staff", err)
		}
		recordExport(ctx, store, "oars", cfg.Oars.School, "staff", file)
		slog.Info("saved", "path", file.Path)
	},
}
