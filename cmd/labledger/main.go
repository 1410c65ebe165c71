package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/labledger/labledger/internal/config"
	"github.com/labledger/labledger/internal/domain/consolidate"
	"github.com/labledger/labledger/internal/domain/exam"
	"github.com/labledger/labledger/internal/domain/ingest"
	"github.com/labledger/labledger/internal/domain/reference"
	"github.com/labledger/labledger/internal/domain/vocabulary"
	"github.com/labledger/labledger/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "labledger",
		Short: "Lab exam consolidation engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(consolidateCmd())
	rootCmd.AddCommand(vocabCmd())
	rootCmd.AddCommand(storeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the consolidated store query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func consolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate source=file [source=file ...]",
		Short: "Merge batch exports into the consolidated store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, _ := cmd.Flags().GetInt64("batch")
			summaryOut, _ := cmd.Flags().GetString("summary-json")

			inputs := make([]consolidate.InputFile, 0, len(args))
			for _, arg := range args {
				in, err := parseInputArg(arg)
				if err != nil {
					return err
				}
				inputs = append(inputs, in)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			vocab, err := vocabulary.Load(cfg.VocabularyPath)
			if err != nil {
				return err
			}
			sources, err := ingest.LoadSources(cfg.SourcesPath)
			if err != nil {
				return err
			}
			repo := exam.NewCSVRepo(cfg.StorePath)

			pipeline := consolidate.New(vocab, sources, repo, consolidate.Options{
				LockPath: cfg.LockFile(),
				Workers:  cfg.ParseWorkers,
				Logger:   logger,
			})

			summary, err := pipeline.Consolidate(context.Background(), inputs, batch)
			if err != nil {
				return err
			}

			if summaryOut != "" {
				return writeSummaryJSON(summary, summaryOut)
			}
			printSummary(summary)
			return nil
		},
	}
	cmd.Flags().Int64("batch", 0, "Batch sequence number for this run")
	cmd.Flags().String("summary-json", "", "Write the run summary as JSON to this path, or - for stdout")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func vocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect the vocabulary mapping",
	}

	lintCmd := &cobra.Command{
		Use:   "lint",
		Short: "Compile the vocabulary and source layouts and report what they cover",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			table, err := vocabulary.Load(cfg.VocabularyPath)
			if err != nil {
				return err
			}

			codes := table.TestCodes()
			fmt.Printf("%s: %d entries covering %d test code(s)\n", cfg.VocabularyPath, table.Len(), len(codes))
			for _, code := range codes {
				fmt.Println("  " + code)
			}

			sources, err := ingest.LoadSources(cfg.SourcesPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d source layout(s)\n", cfg.SourcesPath, sources.Len())
			for _, name := range sources.Names() {
				spec, _ := sources.Get(name)
				fmt.Printf("  %s (dates %s)\n", name, spec.DateFormat)
			}
			return nil
		},
	}
	cmd.AddCommand(lintCmd)
	return cmd
}

func storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the consolidated store",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the store file for ordering and unit conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			repo := exam.NewCSVRepo(cfg.StorePath)
			records, err := repo.Load()
			if err != nil {
				return err
			}
			if err := verifyStore(records); err != nil {
				return err
			}
			fmt.Printf("%s: %d record(s), ordered, one unit per test code\n", cfg.StorePath, len(records))
			return nil
		},
	}
	cmd.AddCommand(verifyCmd)
	return cmd
}

// parseInputArg splits a "source=path" argument into an input file.
func parseInputArg(arg string) (consolidate.InputFile, error) {
	name, path, ok := strings.Cut(arg, "=")
	if !ok || name == "" || path == "" {
		return consolidate.InputFile{}, fmt.Errorf("input %q must look like source=path", arg)
	}
	return consolidate.InputFile{Source: name, Path: path}, nil
}

// verifyStore checks the invariants a store write guarantees: canonical
// row order, unique keys, and a single unit per test code.
func verifyStore(records []exam.Record) error {
	units := make(map[string]string)
	for i, rec := range records {
		if i > 0 {
			prev := records[i-1]
			if !exam.Less(prev, rec) {
				if prev.Key() == rec.Key() {
					return fmt.Errorf("store verify: duplicate key %s at row %d", rec.Key(), i+2)
				}
				return fmt.Errorf("store verify: rows out of order at row %d (%s)", i+2, rec.Key())
			}
		}
		if unit, ok := units[rec.TestCode]; ok && unit != rec.Unit {
			return fmt.Errorf("store verify: test code %s carries units %q and %q", rec.TestCode, unit, rec.Unit)
		}
		units[rec.TestCode] = rec.Unit
	}
	return nil
}

// writeSummaryJSON emits the summary as indented JSON to a file, or to
// stdout when dest is "-".
func writeSummaryJSON(s *consolidate.BatchDiffSummary, dest string) error {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if dest == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(dest, out, 0o644)
}

func printSummary(s *consolidate.BatchDiffSummary) {
	fmt.Printf("Run %s finished in %s\n", s.RunID, s.Duration().Round(time.Millisecond))
	fmt.Printf("Batch %d over %d file(s): %d added, %d updated, %d unchanged, %d rejected\n",
		s.BatchID, len(s.Files), s.Added, s.Updated, s.Unchanged, s.Rejected)
	for _, u := range s.UpdatedRecords {
		fmt.Printf("  updated %s %s %s: %g -> %g (batch %d -> %d)\n",
			u.PatientID, u.TestCode, u.CollectionDate, u.OldValue, u.NewValue, u.OldBatchID, u.NewBatchID)
	}
	for _, r := range s.RejectedRows {
		fmt.Printf("  rejected %s row %d: %s\n", r.File, r.Row, r.Reason)
	}
	fmt.Printf("Store now holds %d record(s).\n", s.StoreTotal)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}
	return logger
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	refs, err := reference.Load(cfg.ReferencePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load reference ranges")
	}

	repo := exam.NewCSVRepo(cfg.StorePath)
	svc := exam.NewService(repo, refs, cfg.CacheTTL())
	n, err := svc.Reload()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load consolidated store")
	}
	logger.Info().Int("records", n).Str("path", cfg.StorePath).Msg("consolidated store loaded")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.HTTPTimeout()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.ETag(cfg.CacheTTLSeconds))

	handler := exam.NewHandler(svc)
	handler.RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
