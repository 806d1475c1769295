package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/aluiziolira/go-scrape-reviews/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	defaultCfg := config.DefaultConfig()
	urlDefault := defaultCfg.StartURL
	if value, ok := config.EnvString("REVIEWS_URL"); ok {
		urlDefault = value
	}
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("REVIEWS_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid REVIEWS_PAGES: %v\n", err)
		return 1
	} else if ok {
		pagesDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("REVIEWS_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("REVIEWS_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	fs := flag.NewFlagSet("reviews", flag.ContinueOnError)
	startURL := fs.String("url", urlDefault, "First review listing page to crawl")
	maxPages := fs.Int("pages", pagesDefault, "Maximum listing pages to crawl")
	maxAttempts := fs.Int("max-attempts", defaultCfg.MaxAttempts, "Fetch attempts per page before giving up")
	retryDelayMs := fs.Int("retry-delay", int(defaultCfg.RetryDelay/time.Millisecond), "Delay before the first retry (milliseconds)")
	backoff := fs.Float64("backoff", defaultCfg.BackoffFactor, "Multiplier applied to the retry delay after each failure")
	timeoutMs := fs.Int("timeout", int(defaultCfg.Timeout/time.Millisecond), "Request timeout (milliseconds)")
	delayMs := fs.Int("delay", 0, "Delay between requests (milliseconds)")
	outputFile := fs.String("output", outputDefault, "Output file path")
	outputFormat := fs.String("format", defaultCfg.OutputFormat, "Output format: text, csv, or json")
	verbose := fs.Bool("v", false, "Print per-page and per-review progress")
	metricsAddr := fs.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	stopOnCycle := fs.Bool("stop-on-cycle", defaultCfg.StopOnCycle, "Stop when a Next link points back at a crawled page")
	summarize := fs.String("summarize", "", "Summarise a stored review file instead of crawling")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if *summarize != "" {
		return runSummary(*summarize, stdout)
	}

	if err := applyPositional(fs, startURL, outputFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		fs.Usage()
		return 2
	}

	cfg := config.DefaultConfig()
	cfg.StartURL = *startURL
	cfg.MaxPages = *maxPages
	cfg.MaxAttempts = *maxAttempts
	cfg.RetryDelay = time.Duration(*retryDelayMs) * time.Millisecond
	cfg.BackoffFactor = *backoff
	cfg.Timeout = time.Duration(*timeoutMs) * time.Millisecond
	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr
	cfg.StopOnCycle = *stopOnCycle
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	crawler, err := scraper.New(cfg, logger)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		return 1
	}
	if cfg.Verbose {
		crawler.OnPage = func(page, items int) {
			fmt.Fprintf(stdout, "Page %d: %d reviews\n", page, items)
		}
		crawler.OnReview = func(_ int, review models.Review) {
			fmt.Fprintln(stdout, review.String())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, crawler.Metrics)
	defer shutdownMetricsServer(metricsServer)

	slog.Info("starting crawl",
		slog.String("url", cfg.StartURL),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("max_attempts", cfg.MaxAttempts),
	)

	result, err := crawler.Crawl(ctx, cfg.StartURL)
	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		return 1
	}

	if err := writeResult(cfg, result.Reviews); err != nil {
		slog.Error("writing output", slog.Any("error", err))
		return 1
	}

	printSummary(stdout, result, cfg.OutputFile)
	return 0
}

// applyPositional maps the optional [url [output]] arguments onto their
// flags. A positional value replaces the env or default value but conflicts
// with the same flag given explicitly.
func applyPositional(fs *flag.FlagSet, startURL, outputFile *string) error {
	if fs.NArg() > 2 {
		return fmt.Errorf("too many arguments: %v", fs.Args())
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	targets := []struct {
		flag  string
		value *string
	}{
		{flag: "url", value: startURL},
		{flag: "output", value: outputFile},
	}
	for i, arg := range fs.Args() {
		target := targets[i]
		if set[target.flag] {
			return fmt.Errorf("positional %s %q conflicts with -%s", target.flag, arg, target.flag)
		}
		*target.value = arg
	}
	return nil
}

func writeResult(cfg *config.Config, reviews []models.Review) error {
	writer, err := store.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return err
	}
	if err := writer.Write(reviews); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation: %w", err)
	}
	return nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func runSummary(filename string, stdout io.Writer) int {
	reviews, err := store.ReadFile(filename)
	if err != nil {
		slog.Error("reading reviews", slog.Any("error", err))
		return 1
	}

	var helpful, total, stars int
	for _, review := range reviews {
		helpful += review.Helpfulness.Helpful
		total += review.Helpfulness.Total
		stars += int(review.Stars)
	}
	average := 0.0
	if len(reviews) > 0 {
		average = float64(stars) / float64(len(reviews))
	}

	fmt.Fprintf(stdout, "Num reviews: %d\n", len(reviews))
	fmt.Fprintf(stdout, "Average stars: %.2f\n", average)
	fmt.Fprintf(stdout, "Helpful votes: %d of %d\n", helpful, total)
	return 0
}

func printSummary(stdout io.Writer, result *models.CrawlResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(stdout, "\n"+separator)
	fmt.Fprintln(stdout, "Crawl complete")
	fmt.Fprintf(stdout, "  Num reviews:   %d\n", len(result.Reviews))
	fmt.Fprintf(stdout, "  Pages:         %d\n", result.Pages)
	fmt.Fprintf(stdout, "  Retries:       %d\n", result.Retries)
	fmt.Fprintf(stdout, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Fprintf(stdout, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(stdout, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
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
