package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds crawler configuration.
type Config struct {
	StartURL         string
	MaxPages         int
	MaxAttempts      int
	RetryDelay       time.Duration
	BackoffFactor    float64
	Timeout          time.Duration
	Delay            time.Duration
	VisitedCacheSize int
	StopOnCycle      bool // end the crawl when a next link revisits a page
	OutputFile       string
	OutputFormat     string // text, csv, or json
	UserAgent        string
	Verbose          bool
	MetricsAddr      string
}

// DefaultConfig returns the defaults used by the reviews command.
func DefaultConfig() *Config {
	return &Config{
		StartURL:         "",
		MaxPages:         10,
		MaxAttempts:      10,
		RetryDelay:       3 * time.Second,
		BackoffFactor:    2,
		Timeout:          30 * time.Second,
		Delay:            0,
		VisitedCacheSize: 1024,
		StopOnCycle:      false,
		OutputFile:       "output/reviews.txt",
		OutputFormat:     "text",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
		MetricsAddr:      "",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("start URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("start URL scheme must be http or https")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be at least 1")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.VisitedCacheSize <= 0 {
		return fmt.Errorf("visited cache size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "text" && c.OutputFormat != "csv" && c.OutputFormat != "json" {
		return fmt.Errorf("output format must be text, csv, or json")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%q: %w", key, value, err)
	}
	return n, true, nil
}
