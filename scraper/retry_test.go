package scraper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type scriptedFetcher struct {
	errs  []error
	body  []byte
	calls int
}

func (sf *scriptedFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	sf.calls++
	if sf.calls <= len(sf.errs) {
		return nil, sf.errs[sf.calls-1]
	}
	return sf.body, nil
}

func connErr() error {
	return ErrConnection{Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRecordingRetrier(next Fetcher, policy RetryPolicy, logger *slog.Logger) (*RetryingFetcher, *[]time.Duration) {
	rf := NewRetryingFetcher(next, policy, logger, NewMetrics())
	delays := &[]time.Duration{}
	rf.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return rf, delays
}

func TestRetryingFetcherRecoversAfterTransientFailures(t *testing.T) {
	next := &scriptedFetcher{errs: repeat(connErr(), 3), body: []byte("ok")}
	rf, delays := newRecordingRetrier(next, DefaultRetryPolicy(), discardLogger())

	body, err := rf.Fetch(context.Background(), "http://example.test/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}
	if next.calls != 4 {
		t.Fatalf("calls = %d, want 4", next.calls)
	}

	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i, d := range *delays {
		if d != want[i] {
			t.Fatalf("delays = %v, want %v", *delays, want)
		}
		if d != rf.policy.Backoff(i+1) {
			t.Fatalf("delay %d = %v, Backoff(%d) = %v", i, d, i+1, rf.policy.Backoff(i+1))
		}
	}
	if rf.Retries() != 3 {
		t.Fatalf("retries = %d, want 3", rf.Retries())
	}
	if got := testutil.ToFloat64(rf.metrics.RetriesTotal); got != 3 {
		t.Fatalf("retries metric = %v, want 3", got)
	}
}

func TestRetryingFetcherExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, InitialDelay: time.Second, BackoffFactor: 2}
	next := &scriptedFetcher{errs: repeat(connErr(), 100)}
	rf, delays := newRecordingRetrier(next, policy, discardLogger())

	_, err := rf.Fetch(context.Background(), "http://example.test/reviews")
	if err == nil {
		t.Fatalf("expected error")
	}
	if next.calls != 4 {
		t.Fatalf("calls = %d, want 4", next.calls)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Attempts != 4 || fetchErr.URL != "http://example.test/reviews" {
		t.Fatalf("fetch error = %+v", fetchErr)
	}
	var conn ErrConnection
	if !errors.As(err, &conn) {
		t.Fatalf("expected connection cause, got %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Fatalf("delays = %v, want %v", *delays, want)
		}
	}
}

func TestRetryingFetcherPermanentErrorNotRetried(t *testing.T) {
	next := &scriptedFetcher{errs: []error{ErrNotFound{Err: errors.New("Not Found")}}}
	rf, delays := newRecordingRetrier(next, DefaultRetryPolicy(), discardLogger())

	_, err := rf.Fetch(context.Background(), "http://example.test/missing")
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("calls = %d, want 1", next.calls)
	}
	if len(*delays) != 0 {
		t.Fatalf("unexpected sleeps %v", *delays)
	}
}

func TestRetryingFetcherStopsOnPermanentAfterTransient(t *testing.T) {
	next := &scriptedFetcher{errs: []error{connErr(), ErrForbidden{Err: errors.New("Forbidden")}}}
	rf, delays := newRecordingRetrier(next, DefaultRetryPolicy(), discardLogger())

	_, err := rf.Fetch(context.Background(), "http://example.test/")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Attempts != 2 {
		t.Fatalf("expected FetchError after 2 attempts, got %v", err)
	}
	if next.calls != 2 || len(*delays) != 1 {
		t.Fatalf("calls = %d sleeps = %d, want 2 and 1", next.calls, len(*delays))
	}
}

func TestRetryingFetcherSingleAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 1, InitialDelay: time.Second, BackoffFactor: 2}
	next := &scriptedFetcher{errs: []error{connErr()}}
	rf, delays := newRecordingRetrier(next, policy, discardLogger())

	if _, err := rf.Fetch(context.Background(), "http://example.test/"); err == nil {
		t.Fatalf("expected error")
	}
	if next.calls != 1 || len(*delays) != 0 {
		t.Fatalf("calls = %d sleeps = %d, want 1 and 0", next.calls, len(*delays))
	}
}

func TestRetryingFetcherLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	next := &scriptedFetcher{errs: []error{connErr()}, body: []byte("ok")}
	rf, _ := newRecordingRetrier(next, DefaultRetryPolicy(), logger)

	if _, err := rf.Fetch(context.Background(), "http://example.test/"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("expected a warning, got %q", out)
	}
	if !strings.Contains(out, `msg="retrying fetch"`) || !strings.Contains(out, "connection refused") || !strings.Contains(out, "delay=3s") {
		t.Fatalf("warning should name cause and delay, got %q", out)
	}
}

func TestRetryingFetcherHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next := &scriptedFetcher{errs: repeat(connErr(), 10)}
	rf := NewRetryingFetcher(next, DefaultRetryPolicy(), discardLogger(), nil)

	_, err := rf.Fetch(ctx, "http://example.test/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("calls = %d, want 1", next.calls)
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, InitialDelay: 3 * time.Second, BackoffFactor: 2}
	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second, 24 * time.Second}
	for i, w := range want {
		if got := policy.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
