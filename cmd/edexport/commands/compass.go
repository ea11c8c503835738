package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"edexport-backend/lib/scrapers/compass"
	"edexport-backend/lib/serviceutil"
	"edexport-backend/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var compassCmd = &cobra.Command{
	Use:   "compass",
	Short: "Exports from a Compass school portal.",
}

var (
	compassYear          *string
	compassReportCycle   *int
	compassProgressCycle *int
	sdsDate              *string
)

func init() {
	compassYear = compassLearningTasksCmd.Flags().String("year", "", "The academic year to export, e.g. \"2024\". Defaults to the most recent one.")
	compassReportCycle = compassReportsCmd.Flags().Int("cycle", 0, "The report cycle id to export. Defaults to the most recent cycle.")
	compassProgressCycle = compassProgressReportsCmd.Flags().Int("cycle", 0, "The progress report cycle id to export. Defaults to the most recent cycle.")
	sdsDate = compassSdsExtractCmd.Flags().String("date", "", "The export date to suffix extracted files with, as yyyy-mm-dd. Defaults to today.")

	compassCmd.AddCommand(compassCyclesCmd)
	compassCmd.AddCommand(compassLearningTasksCmd)
	compassCmd.AddCommand(compassReportsCmd)
	compassCmd.AddCommand(compassProgressReportsCmd)
	compassCmd.AddCommand(compassStudentDetailsCmd)
	compassCmd.AddCommand(compassSdsExtractCmd)
	rootCmd.AddCommand(compassCmd)
}

func createCompassClient(ctx context.Context, cfg Config) *compass.Client {
	client, err := compass.NewClient(ctx, compass.Options{
		SchoolCode: cfg.Compass.SchoolCode,
	}, compass.Credentials{
		Username: cfg.Compass.Username,
		Password: cfg.Compass.Password,
	})
	if err != nil {
		serviceutil.Fatal("failed to login to compass", err)
	}
	return client
}

var compassCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Lists report cycles, progress report cycles and academic years.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := createCompassClient(ctx, readConfig())

		reports, err := client.ReportCycles(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list report cycles", err)
		}
		progress, err := client.ProgressReportCycles(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list progress report cycles", err)
		}
		groups, err := client.AcademicGroups(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list academic years", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Kind", "Id", "Name", "Year"})
		for _, c := range reports {
			t.AppendRow(table.Row{"report", c.Id, c.Name, c.Year})
		}
		for _, c := range progress {
			t.AppendRow(table.Row{"progress report", c.Id, c.Name, c.Year})
		}
		for _, g := range groups {
			t.AppendRow(table.Row{"academic year", g.Id, g.Name, ""})
		}
		t.Render()
	},
}

var compassLearningTasksCmd = &cobra.Command{
	Use:   "learning-tasks [--year <name>]",
	Short: "Exports the learning tasks of one academic year.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		client := createCompassClient(ctx, cfg)
		store, closeStore := openStore(cfg)
		defer closeStore()

		groups, err := client.AcademicGroups(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list academic years", err)
		}
		group, err := pickAcademicGroup(groups, *compassYear)
		if err != nil {
			serviceutil.Fatal("failed to pick an academic year", err)
		}

		slog.Info("exporting learning tasks", "year", group.Name)
		file, err := client.ExportLearningTasks(ctx, group.Id, group.Name, cfg.ExportDir)
		if err != nil {
			serviceutil.Fatal("failed to export learning tasks", err)
		}
		recordExport(ctx, store, "compass", cfg.Compass.SchoolCode, "learning-tasks", file)
		slog.Info("saved", "path", file.Path)
	},
}

// the -1 group stands for "all years" and cannot be exported directly
func pickAcademicGroup(groups []compass.AcademicGroup, year string) (compass.AcademicGroup, error) {
	if year != "" {
		for _, g := range groups {
			if g.Name == year {
				return g, nil
			}
		}
		return compass.AcademicGroup{}, fmt.Errorf("no academic year named %q", year)
	}
	picked := compass.AcademicGroup{Id: -1}
	for _, g := range groups {
		if g.Id > picked.Id {
			picked = g
		}
	}
	if picked.Id == -1 {
		return compass.AcademicGroup{}, fmt.Errorf("the portal listed no exportable academic years")
	}
	return picked, nil
}

func pickCycle(cycles []compass.Cycle, id int) (compass.Cycle, error) {
	if id != 0 {
		for _, c := range cycles {
			if c.Id == id {
				return c, nil
			}
		}
		return compass.Cycle{}, fmt.Errorf("no cycle with id %d", id)
	}
	if len(cycles) == 0 {
		return compass.Cycle{}, fmt.Errorf("the portal listed no cycles")
	}
	return cycles[0], nil
}

var compassReportsCmd = &cobra.Command{
	Use:   "reports [--cycle <id>]",
	Short: "Exports the student reports of one report cycle.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		client := createCompassClient(ctx, cfg)
		store, closeStore := openStore(cfg)
		defer closeStore()

		cycles, err := client.ReportCycles(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list report cycles", err)
		}
		cycle, err := pickCycle(cycles, *compassReportCycle)
		if err != nil {
			serviceutil.Fatal("failed to pick a report cycle", err)
		}

		slog.Info("exporting reports", "cycle", cycle.Name, "year", cycle.Year)
		file, err := client.ExportReports(ctx, cycle.Id, cfg.ExportDir)
		if err != nil {
			serviceutil.Fatal("failed to export reports", err)
		}
		recordExport(ctx, store, "compass", cfg.Compass.SchoolCode, "reports", file)
		slog.Info("saved", "path", file.Path)
	},
}

var compassProgressReportsCmd = &cobra.Command{
	Use:   "progress-reports [--cycle <id>]",
	Short: "Exports the progress reports of one progress report cycle.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		client := createCompassClient(ctx, cfg)
		store, closeStore := openStore(cfg)
		defer closeStore()

		cycles, err := client.ProgressReportCycles(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list progress report cycles", err)
		}
		cycle, err := pickCycle(cycles, *compassProgressCycle)
		if err != nil {
			serviceutil.Fatal("failed to pick a progress report cycle", err)
		}

		slog.Info("exporting progress reports", "cycle", cycle.Name)
		file, err := client.ExportProgressReports(ctx, cycle.Id, cycle.Name, cfg.ExportDir)
		if err != nil {
			serviceutil.Fatal("failed to export progress reports", err)
		}
		recordExport(ctx, store, "compass", cfg.Compass.SchoolCode, "progress-reports", file)
		slog.Info("saved", "path", file.Path)
	},
}

var compassStudentDetailsCmd = &cobra.Command{
	Use:   "student-details",
	Short: "Exports the student details csv.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		client := createCompassClient(ctx, cfg)
		store, closeStore := openStore(cfg)
		defer closeStore()

		file, err := client.ExportStudentDetails(ctx, cfg.ExportDir)
		if err != nil {
			serviceutil.Fatal("failed to export student details", err)
		}
		recordExport(ctx, store, "compass", cfg.Compass.SchoolCode, "student-details", file)
		slog.Info("saved", "path", file.Path)
	},
}

var compassSdsExtractCmd = &cobra.Command{
	Use:   "sds-extract <path/to/export.zip>",
	Short: "Extracts the enrolment csvs out of a downloaded SDS export zip.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		store, closeStore := openStore(cfg)
		defer closeStore()

		date := timezone.Today()
		if *sdsDate != "" {
			var err error
			date, err = time.ParseInLocation("2006-01-02", *sdsDate, timezone.Location)
			if err != nil {
				serviceutil.Fatal("failed to parse --date", err)
			}
		}

		files, err := compass.ExtractSDSExport(args[0], cfg.ExportDir, date)
		if err != nil {
			serviceutil.Fatal("failed to extract the SDS export", err)
		}
		for _, file := range files {
			recordExport(ctx, store, "compass", cfg.Compass.SchoolCode, "sds", file)
			slog.Info("extracted", "path", file.Path)
		}
	},
}
