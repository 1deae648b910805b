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
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-xwlb/config"
	"github.com/aluiziolira/go-scrape-xwlb/digest"
	"github.com/aluiziolira/go-scrape-xwlb/models"
	"github.com/aluiziolira/go-scrape-xwlb/parser"
	"github.com/aluiziolira/go-scrape-xwlb/pipeline"
	"github.com/aluiziolira/go-scrape-xwlb/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaultCfg := config.DefaultConfig()

	configFile := flag.String("config", "", "YAML config file overlaid on the defaults")
	date := flag.String("date", time.Now().Format(string(parser.FormatDashed)), "Target date for the daily run (YYYY-MM-DD, YYYY/MM/DD or YYYYMMDD)")
	start := flag.String("start", "", "Range mode: first date to collect")
	end := flag.String("end", "", "Range mode: last date to collect (defaults to -start)")
	stored := flag.Bool("stored", false, "Range mode: read the range from the stored table instead of fetching")
	markdownOut := flag.String("markdown", "", "Write a Markdown digest to this path (- for stdout)")
	proxy := flag.String("proxy", "", "Proxy address used for both http and https")
	dataDir := flag.String("data-dir", defaultCfg.DataDir, "Directory holding the store files")
	parallelism := flag.Int("parallel", defaultCfg.Parallelism, "Number of dates fetched concurrently")
	maxAttempts := flag.Int("max-attempts", defaultCfg.MaxAttempts, "Attempts per URL before giving up")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Fixed delay between attempts (milliseconds)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose, logOutput(*markdownOut))
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			slog.Error("loading config file", slog.Any("error", err))
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := applyEnv(cfg); err != nil {
		slog.Error("invalid environment", slog.Any("error", err))
		os.Exit(1)
	}

	// Explicit flags win over the file and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "proxy":
			cfg.Proxy = config.ProxyFromAddress(*proxy)
		case "data-dir":
			cfg.DataDir = *dataDir
		case "parallel":
			cfg.Parallelism = *parallelism
		case "max-attempts":
			cfg.MaxAttempts = *maxAttempts
		case "retry-backoff":
			cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "v":
			cfg.Verbose = *verbose
		}
	})
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := checkModes(*start, *end, *stored); err != nil {
		slog.Error("invalid flags", slog.Any("error", err))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	if *start != "" && *stored {
		records, err := loadStored(cfg, *start, *end)
		if err != nil {
			slog.Error("reading stored range", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("loaded stored records", slog.Int("records", len(records)))
		if err := writeDigest(*markdownOut, records); err != nil {
			slog.Error("writing digest", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	defer func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}()

	var records []models.NewsRecord
	if *start != "" {
		rangeEnd := *end
		if rangeEnd == "" {
			rangeEnd = *start
		}
		slog.Info("starting range collection",
			slog.String("start", *start),
			slog.String("end", rangeEnd),
			slog.Int("workers", cfg.Parallelism),
		)
		result, err := s.Collect(ctx, *start, rangeEnd)
		if err != nil {
			slog.Error("collection failed", slog.Any("error", err))
			os.Exit(1)
		}
		printSummary(result)
		records = result.Records
	} else {
		slog.Info("starting daily collection",
			slog.String("date", *date),
			slog.String("data_dir", cfg.DataDir),
		)
		startTime := time.Now()
		records = s.CollectDaily(ctx, *date)
		slog.Info("daily collection finished",
			slog.Int("records", len(records)),
			slog.Int("subset", len(pipeline.SplitByTitle(records, cfg.SubsetTitle))),
			slog.Duration("duration", time.Since(startTime)),
		)
	}

	if err := writeDigest(*markdownOut, records); err != nil {
		slog.Error("writing digest", slog.Any("error", err))
		os.Exit(1)
	}
}

// checkModes rejects flags that only make sense in range mode.
func checkModes(start, end string, stored bool) error {
	if start != "" {
		return nil
	}
	if stored {
		return errors.New("-stored requires -start")
	}
	if end != "" {
		return errors.New("-end requires -start")
	}
	return nil
}

// logOutput keeps logs off stdout when the digest is written there.
func logOutput(markdownPath string) *os.File {
	if markdownPath == "-" {
		return os.Stderr
	}
	return os.Stdout
}

// applyEnv overlays the XWLB_* environment variables on cfg.
func applyEnv(cfg *config.Config) error {
	if value, ok := config.EnvString("XWLB_PROXY"); ok {
		cfg.Proxy = config.ProxyFromAddress(value)
	} else if value, ok := config.EnvString("PROXY"); ok {
		cfg.Proxy = config.ProxyFromAddress(value)
	}
	if value, ok := config.EnvString("XWLB_DATA_DIR"); ok {
		cfg.DataDir = value
	}
	if value, ok, err := config.EnvInt("XWLB_PARALLEL"); err != nil {
		return err
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok := config.EnvString("XWLB_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

func loadStored(cfg *config.Config, start, end string) ([]models.NewsRecord, error) {
	from, err := parser.ParseDate(start)
	if err != nil {
		return nil, err
	}
	to := from
	if end != "" {
		if to, err = parser.ParseDate(end); err != nil {
			return nil, err
		}
	}
	table, _ := cfg.AllPaths()
	return pipeline.LoadRange(table, from, to)
}

func writeDigest(path string, records []models.NewsRecord) error {
	if path == "" {
		return nil
	}
	md := digest.Markdown(records, time.Now())
	if path == "-" {
		_, err := fmt.Fprintln(os.Stdout, md)
		return err
	}
	if err := os.WriteFile(path, []byte(md+"\n"), 0o644); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}
	slog.Info("digest written", slog.String("path", path), slog.Int("records", len(records)))
	return nil
}

func printSummary(result *models.CollectResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Collection complete")

	fmt.Printf("  Records:       %d\n", len(result.Records))
	fmt.Printf("  Dates:         %d\n", len(result.Dates))
	fmt.Printf("  With data:     %d\n", len(result.DatesWithData))
	fmt.Printf("  Empty:         %d\n", len(result.EmptyDates))
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Println(separator)
}

func newLogger(verbose bool, out *os.File) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(out) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
