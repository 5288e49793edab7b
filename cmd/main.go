package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docrank/internal/analysis"
	"docrank/internal/claims"
	"docrank/internal/cohort"
	"docrank/internal/configuration"
	"docrank/internal/metrics"
	"docrank/internal/report"
	"docrank/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const usage = `usage: docrank <command> [flags]

commands:
  rank    rank doctors from the configured source and append the report
  serve   run the HTTP API
  export  copy counts from the claims database into a Parquet file
`

// prepareLogger sets a JSON slog logger on stdout as the default logger.
// Unknown levels fall back to info.
func prepareLogger(level string) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	slog.SetDefault(slog.New(handler))
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]
	flags := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := flags.String("config", "/etc/docrank/config.yaml", "configuration file")
	out := flags.String("out", "counts.parquet", "output file (export)")
	flags.Parse(os.Args[2:])

	config, err := configuration.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Unable to load configuration", "error", err)
		os.Exit(1)
	}
	prepareLogger(config.Logger.Level)

	appCtx, appCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer appCancel()

	switch command {
	case "rank":
		err = rank(appCtx, config)
	case "serve":
		err = serve(appCtx, config)
	case "export":
		err = export(appCtx, config, *out)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		slog.Error("Command failed", "command", command, "error", err)
		appCancel()
		os.Exit(1)
	}
}

func newAnalyzer(config *configuration.AppConfig, m *metrics.Metrics) (*analysis.Analyzer, error) {
	prior, support, err := config.Estimator.Grid()
	if err != nil {
		return nil, fmt.Errorf("estimator grid: %w", err)
	}

	var filter *cohort.Filter
	if config.Cohort.Rules != "" {
		rules, err := cohort.LoadFromFile(config.Cohort.Rules)
		if err != nil {
			return nil, fmt.Errorf("cohort rules: %w", err)
		}
		filter = cohort.NewFilter(rules)
		slog.Info("Cohort rules loaded", "file", config.Cohort.Rules, "rules", filter.Len())
	}

	return analysis.NewAnalyzer(prior, support, config.Estimator.Workers, filter, m)
}

func newReports(config *configuration.AppConfig) report.Repository {
	if config.Report.File == "" {
		return report.Discard{}
	}
	return report.NewJsonReportRepository(config.Report.File, config.Report.Size, config.Report.Amount)
}

// openSource returns the configured counts source and a function releasing it.
func openSource(ctx context.Context, config *configuration.AppConfig) (claims.Source, func(), error) {
	switch config.Source.Type {
	case configuration.SourcePostgres:
		loader, err := claims.NewLoader(ctx, config.Source.DSN, config.Source.Query())
		if err != nil {
			return nil, nil, err
		}
		return loader, loader.Close, nil
	case configuration.SourceParquet:
		return claims.ParquetSource{Path: config.Source.Parquet}, func() {}, nil
	default:
		return nil, nil, errors.New("source.type: must be specified")
	}
}

func rank(ctx context.Context, config *configuration.AppConfig) error {
	criteria, err := config.Ranking.Criteria()
	if err != nil {
		return err
	}

	analyzer, err := newAnalyzer(config, nil)
	if err != nil {
		return err
	}

	source, release, err := openSource(ctx, config)
	if err != nil {
		return err
	}
	defer release()

	counts, err := source.Counts(ctx)
	if err != nil {
		return err
	}

	result, err := analyzer.Rank(ctx, counts, criteria, config.Estimator.Alpha)
	if err != nil {
		return err
	}

	reports := newReports(config)
	defer reports.Close()
	reports.Append(result.Report())

	for _, group := range result.Rankings.Groups() {
		slog.Info("Rank", "run_id", result.RunID, "rank", group.Rank, "entities", result.Rankings.EntityIDs(group.Rank))
	}
	return nil
}

func serve(ctx context.Context, config *configuration.AppConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics()
	if err := m.Register(reg); err != nil {
		return err
	}

	analyzer, err := newAnalyzer(config, m)
	if err != nil {
		return err
	}

	reports := newReports(config)
	defer reports.Close()

	router := server.NewApiV1Router(analyzer, config.Server.HistoryLength, config.Estimator.Alpha, reports, reg)
	srv := server.NewServer(config.Server.Address, router)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("Server listening " + config.Server.Address)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown", "error", err)
	}
	slog.Info("Server stopped")
	return nil
}

func export(ctx context.Context, config *configuration.AppConfig, out string) error {
	if config.Source.Type != configuration.SourcePostgres {
		return errors.New("export reads from a postgres source")
	}

	loader, err := claims.NewLoader(ctx, config.Source.DSN, config.Source.Query())
	if err != nil {
		return err
	}
	defer loader.Close()

	counts, err := loader.Counts(ctx)
	if err != nil {
		return err
	}

	if err := claims.WriteCounts(out, counts); err != nil {
		return err
	}
	slog.Info("Counts exported", "file", out, "doctors", len(counts))
	return nil
}
