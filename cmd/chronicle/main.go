package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sike25/chronicle-poc/internal/backend"
	"github.com/sike25/chronicle-poc/internal/compose"
	"github.com/sike25/chronicle-poc/internal/config"
	"github.com/sike25/chronicle-poc/internal/database"
	"github.com/sike25/chronicle-poc/internal/logging"
	"github.com/sike25/chronicle-poc/internal/pipeline"
	"github.com/sike25/chronicle-poc/internal/server"
	"github.com/sike25/chronicle-poc/internal/timeline"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "chronicle",
	Short:   "Document coverage over time",
	Long:    "Chronicle searches a news archive for a topic, groups the hits into time periods, summarizes each period and draws the result as a timeline.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "INFO"
		if verbose {
			level = "DEBUG"
		}
		slog.SetDefault(logging.New(os.Stderr, level, "text"))

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if !verbose {
			slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
		}
		return nil
	},
}

func init() {
	// main prints the error once
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(topicsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("chronicle", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/chronicle/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point at your chronicle backend or a local chronicle_data.json dump.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend and run history status",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackend()
		if err != nil {
			return err
		}

		fmt.Println("Backend:")
		switch b := b.(type) {
		case *backend.HTTPBackend:
			fmt.Printf("  URL: %s\n", b.BaseURL)
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := b.Ping(ctx); err != nil {
				fmt.Printf("  Reachable: no (%v)\n", err)
			} else {
				fmt.Println("  Reachable: yes")
			}
		case *backend.DatasetBackend:
			fmt.Printf("  Dataset: %s\n", cfg.GetDatasetPath())
			fmt.Printf("  Queries: %d\n", len(b.Queries()))
		}

		if !cfg.History.Enabled {
			fmt.Println("\nHistory: disabled")
			return nil
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.TotalRuns)
		fmt.Printf("  Succeeded: %d\n", stats.Succeeded)
		fmt.Printf("  Failed: %d\n", stats.Failed)
		fmt.Printf("  Unfinished: %d\n", stats.Unfinished)
		fmt.Printf("  Distinct queries: %d\n", stats.Queries)
		return nil
	},
}

// --- run command ---

var (
	detailIndex  int
	markdownPath string
)

var runCmd = &cobra.Command{
	Use:          "run QUERY",
	Short:        "Run the pipeline for a query: search -> organize -> enrich -> render",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, db, err := newSession()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out, err := session.Run(ctx, args[0], printEvent(os.Stdout))
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Print(renderTimeline(out.Query, timeline.Present(*out.Set)))

		if cmd.Flags().Changed("detail") {
			if detailIndex < 0 || detailIndex >= len(out.Set.Buckets) {
				return fmt.Errorf("no bucket %d; the timeline has %d", detailIndex, len(out.Set.Buckets))
			}
			fmt.Println()
			fmt.Println(renderDetail(timeline.Detail(out.Set.Buckets[detailIndex])))
		}

		if markdownPath != "" {
			report := compose.Markdown(compose.Report{
				Set:           *out.Set,
				DocumentCount: out.DocumentCount,
				DateRange:     out.DateRange,
			})
			if err := os.WriteFile(markdownPath, []byte(report), 0o644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Printf("\nReport written to %s\n", markdownPath)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVarP(&detailIndex, "detail", "d", 0, "Show the detail view of bucket N")
	runCmd.Flags().StringVarP(&markdownPath, "markdown", "m", "", "Also write the timeline as a Markdown report to this file")
}

// stepNumbers maps a stage to its position in the progress output.
var stepNumbers = map[string]int{"search": 1, "organize": 2, "enrich": 3, "render": 4}

// printEvent writes progress lines. Failures are left to the returned
// error.
func printEvent(w io.Writer) func(pipeline.Event) {
	return func(ev pipeline.Event) {
		switch ev.Kind {
		case pipeline.EventProgress:
			if strings.HasSuffix(ev.Message, "...") {
				fmt.Fprintf(w, "\nStep %d/4: %s\n", stepNumbers[string(ev.Stage)], ev.Message)
				return
			}
			fmt.Fprintf(w, "  %s\n", ev.Message)
		case pipeline.EventRenderReady:
			fmt.Fprintf(w, "\nStep 4/4: %s\n", ev.Message)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, db, err := newSession()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
			if n, err := db.FailUnfinishedRuns(time.Now()); err != nil {
				return fmt.Errorf("closing interrupted runs: %w", err)
			} else if n > 0 {
				slog.Info("marked interrupted runs as failed", "count", n)
			}
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(session, db, server.Options{
			Topics:     cfg.Topics,
			ArchiveDir: cfg.Archive.Dir,
		}, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- history command ---

var (
	historyLimit   int
	historyByQuery bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.History.Enabled {
			fmt.Println("Run history is disabled (history.enabled: false).")
			return nil
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if historyByQuery {
			stats, err := db.QueryStats()
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Println("No runs yet. Start one with: chronicle run QUERY")
				return nil
			}
			for _, s := range stats {
				fmt.Printf("  %-24s %3d runs, %3d succeeded, last %s\n",
					s.Query, s.Runs, s.Succeeded, humanize.Time(s.LastRunAt))
			}
			return nil
		}

		runs, err := db.RecentRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs yet. Start one with: chronicle run QUERY")
			return nil
		}

		for _, r := range runs {
			line := fmt.Sprintf("  %-14s %-24s %-8s", humanize.Time(r.StartedAt), r.Query, r.State)
			switch {
			case r.State == database.StateReady:
				line += fmt.Sprintf(" %s documents, %d periods", humanize.Comma(int64(r.DocumentCount)), r.BucketCount)
			case r.Error != nil:
				line += " " + *r.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().BoolVar(&historyByQuery, "by-query", false, "Summarize runs per query")
}

// --- topics command ---

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List configured topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Topics) == 0 {
			fmt.Println("No topics configured.")
		} else {
			fmt.Println("Topics:")
			for _, t := range cfg.Topics {
				fmt.Printf("  %-20s %s\n", t.Query, cfg.TopicName(t.Query))
			}
		}

		if strings.EqualFold(cfg.Backend.Kind, "dataset") {
			ds, err := backend.LoadDataset(cfg.GetDatasetPath())
			if err != nil {
				return err
			}
			fmt.Println("\nQueries in dataset:")
			for _, q := range ds.Queries() {
				fmt.Printf("  %s\n", q)
			}
		}
		return nil
	},
}

func newBackend() (backend.Backend, error) {
	bc := cfg.Backend
	return backend.Create(bc.Kind, bc.BaseURL, bc.APIKeyEnv, cfg.GetDatasetPath(), bc.Timeout(), bc.Delay())
}

// newSession wires backend, runner, display slot and, when history is
// enabled, the run journal. The returned DB is nil without history.
func newSession() (*pipeline.Session, *database.DB, error) {
	b, err := newBackend()
	if err != nil {
		return nil, nil, err
	}
	runner := pipeline.NewRunner(b)
	store := timeline.NewStore()

	if !cfg.History.Enabled {
		return pipeline.NewSession(runner, store, nil), nil, nil
	}
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewSession(runner, store, database.NewJournal(db)), db, nil
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "chronicle.db")
	return database.Open(dbPath)
}
