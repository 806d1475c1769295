package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Crawler walks a paginated review listing one page at a time.
type Crawler struct {
	fetcher     Fetcher
	maxPages    int
	visitedSize int
	stopOnCycle bool
	logger      *slog.Logger
	Metrics     *Metrics

	// OnPage, when set, is called once per page with the number of review
	// items found, before they are extracted.
	OnPage func(page, items int)
	// OnReview, when set, is called for every extracted review.
	OnReview func(page int, review models.Review)
}

// NewCrawler builds a crawler that fetches pages through fetcher.
func NewCrawler(fetcher Fetcher, cfg *config.Config, logger *slog.Logger, metrics *Metrics) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	visitedSize := cfg.VisitedCacheSize
	if visitedSize <= 0 {
		visitedSize = config.DefaultConfig().VisitedCacheSize
	}
	return &Crawler{
		fetcher:     fetcher,
		maxPages:    cfg.MaxPages,
		visitedSize: visitedSize,
		stopOnCycle: cfg.StopOnCycle,
		logger:      logger,
		Metrics:     metrics,
	}
}

// New wires a colly fetcher behind the configured retry policy.
func New(cfg *config.Config, logger *slog.Logger) (*Crawler, error) {
	metrics := NewMetrics()
	fetcher, err := NewCollyFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}
	retrying := NewRetryingFetcher(fetcher, PolicyFromConfig(cfg), logger, metrics)
	return NewCrawler(retrying, cfg, logger, metrics), nil
}

// Crawl follows "Next" links from startURL until the last page or the page
// ceiling. Any fetch failure or malformed item aborts the crawl and no
// partial result is returned.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (*models.CrawlResult, error) {
	visited, err := lru.New[string, struct{}](c.visitedSize)
	if err != nil {
		return nil, fmt.Errorf("visited cache: %w", err)
	}

	retriesBefore := c.retries()
	result := &models.CrawlResult{StartTime: time.Now()}

	pageURL := startURL
	for pageURL != "" && result.Pages < c.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("crawl stopped before page %d: %w", result.Pages+1, err)
		}

		result.Pages++
		visited.Add(pageURL, struct{}{})

		reviews, next, err := c.crawlPage(ctx, result.Pages, pageURL)
		if err != nil {
			return nil, err
		}
		result.Reviews = append(result.Reviews, reviews...)

		pageURL = c.advance(pageURL, next, visited)
	}

	result.EndTime = time.Now()
	result.Retries = c.retries() - retriesBefore

	c.logger.Debug("crawl finished",
		slog.Int("pages", result.Pages),
		slog.Int("reviews", len(result.Reviews)),
		slog.Int("retries", result.Retries),
	)
	return result, nil
}

func (c *Crawler) crawlPage(ctx context.Context, page int, pageURL string) ([]models.Review, string, error) {
	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}

	doc, err := parser.ParsePage(body)
	if err != nil {
		return nil, "", fmt.Errorf("page %d (%s): %w", page, pageURL, err)
	}

	items := parser.FindItems(doc)
	next, _ := parser.FindNextLink(doc)
	c.Metrics.IncPages()
	c.logger.Debug("page scanned",
		slog.Int("page", page),
		slog.Int("items", len(items)),
		slog.String("url", pageURL),
	)
	if c.OnPage != nil {
		c.OnPage(page, len(items))
	}

	reviews := make([]models.Review, 0, len(items))
	for i, item := range items {
		review, err := parser.ExtractReview(item)
		if err != nil {
			return nil, "", fmt.Errorf("page %d (%s) item %d: %w", page, pageURL, i+1, err)
		}
		reviews = append(reviews, review)
		if c.OnReview != nil {
			c.OnReview(page, review)
		}
	}
	c.Metrics.AddReviews(len(reviews))

	return reviews, next, nil
}

// advance resolves the next link against the current page. It returns ""
// when pagination ends. A link back to a crawled page is followed unless
// stopOnCycle is set; the page ceiling still bounds the loop.
func (c *Crawler) advance(current, next string, visited *lru.Cache[string, struct{}]) string {
	if next == "" {
		return ""
	}

	base, err := url.Parse(current)
	if err != nil {
		c.logger.Warn("unparseable page url", slog.String("url", current), slog.Any("error", err))
		return ""
	}
	ref, err := url.Parse(next)
	if err != nil {
		c.logger.Warn("unparseable next link", slog.String("href", next), slog.Any("error", err))
		return ""
	}

	abs := base.ResolveReference(ref).String()
	if visited.Contains(abs) {
		if c.stopOnCycle {
			c.logger.Warn("next link points at a crawled page, stopping", slog.String("url", abs))
			return ""
		}
		c.logger.Debug("next link points at a crawled page", slog.String("url", abs))
	}
	return abs
}

func (c *Crawler) retries() int {
	if counter, ok := c.fetcher.(interface{ Retries() int }); ok {
		return counter.Retries()
	}
	return 0
}
