package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/gocolly/colly/v2"
)

const (
	bodyKey   = "body"
	statusKey = "status"
	startKey  = "start"
)

// Fetcher retrieves the raw body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, pageURL string) ([]byte, error)

// Fetch calls f(ctx, pageURL).
func (f FetcherFunc) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	return f(ctx, pageURL)
}

// CollyFetcher issues one synchronous colly request per Fetch call and
// returns the response body or a classified error.
type CollyFetcher struct {
	collector *colly.Collector
	metrics   *Metrics
}

// NewCollyFetcher builds a fetcher that follows pagination to any host.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if cfg.Delay > 0 {
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: 1,
			Delay:       cfg.Delay,
		}); err != nil {
			return nil, fmt.Errorf("configure request delay: %w", err)
		}
	}

	f := &CollyFetcher{
		collector: collector,
		metrics:   metrics,
	}
	f.configureHandlers()
	return f, nil
}

// WithTransport swaps the HTTP round tripper used by the collector.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

func (f *CollyFetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(startKey, time.Now())
		f.metrics.IncRequest("started")
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(bodyKey, r.Body)
		f.observe(r.Ctx)
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(statusKey, r.StatusCode)
		f.observe(r.Ctx)
	})
}

func (f *CollyFetcher) observe(ctx *colly.Context) {
	if start, ok := ctx.GetAny(startKey).(time.Time); ok {
		f.metrics.ObserveDuration(time.Since(start))
	}
}

// Fetch retrieves pageURL. Network failures come back as ErrTimeout or
// ErrConnection; non-success statuses as one of the HTTP status errors.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, pageURL, nil, reqCtx, nil); err != nil {
		status, _ := reqCtx.GetAny(statusKey).(int)
		classified := classifyError(err, status)
		f.metrics.IncRequest("failed")
		f.metrics.IncError(errorTypeLabel(classified))
		return nil, classified
	}

	f.metrics.IncRequest("succeeded")
	body, _ := reqCtx.GetAny(bodyKey).([]byte)
	return body, nil
}
