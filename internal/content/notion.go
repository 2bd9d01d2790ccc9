package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alpa-strategie/aia-backend/pkg/circuitbreaker"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
	"github.com/alpa-strategie/aia-backend/pkg/retry"
)

const (
	notionPageSize = 100
	notionOrigin   = "https://api.notion.com"
)

type NotionConfig struct {
	Token string
	// BaseURL is the API origin, e.g. a proxy in front of api.notion.com. A
	// trailing /v1 is accepted and ignored.
	BaseURL string
	Version string
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing calls; zero disables throttling.
	RequestsPerSecond float64
	// Databases maps collection ids to Notion database ids.
	Databases map[string]string
}

// NotionSource reads collections from Notion databases.
type NotionSource struct {
	client      *notionapi.Client
	databases   map[string]string
	limiter     *rate.Limiter
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewNotionSource(cfg NotionConfig) *NotionSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = notionOrigin
	}
	if cfg.Version == "" {
		cfg.Version = "2022-06-28"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	cb := circuitbreaker.NewCircuitBreaker("notion", circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, ErrCollectionNotFound) && !errors.Is(err, context.Canceled)
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   300 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
		Operation:      "notion",
	}

	logger.Info("Notion content source initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.Int("databases", len(cfg.Databases)),
	)

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if origin, err := parseOrigin(cfg.BaseURL); err != nil {
		logger.Warn("Invalid Notion base URL, using the public API", zap.String("base_url", cfg.BaseURL), zap.Error(err))
	} else if origin.String() != notionOrigin {
		httpClient.Transport = &originTransport{origin: origin, next: http.DefaultTransport}
	}

	return &NotionSource{
		client: notionapi.NewClient(notionapi.Token(cfg.Token),
			notionapi.WithHTTPClient(httpClient),
			notionapi.WithVersion(cfg.Version),
		),
		databases:   cfg.Databases,
		limiter:     limiter,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (s *NotionSource) QueryCollection(ctx context.Context, collectionID string) ([]Record, error) {
	databaseID, ok := s.databases[collectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionID)
	}
	if databaseID == "" {
		logger.Warn("Notion database not configured, skipping collection", zap.String("collection", collectionID))
		return nil, nil
	}

	pages, err := s.queryDatabase(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("query %s database: %w", collectionID, err)
	}

	records := make([]Record, 0, len(pages))
	for _, p := range pages {
		blocks, err := s.pageBlocks(ctx, string(p.ID))
		if err != nil {
			return nil, fmt.Errorf("fetch blocks of page %s in %s: %w", p.ID, collectionID, err)
		}

		rec := normalize(p, blocks)
		if rec.Title == "" && rec.Body == "" {
			continue
		}
		records = append(records, rec)
	}

	logger.Info("Notion collection fetched",
		zap.String("collection", collectionID),
		zap.Int("pages", len(pages)),
		zap.Int("records", len(records)),
	)

	return records, nil
}

func (s *NotionSource) queryDatabase(ctx context.Context, databaseID string) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	req := &notionapi.DatabaseQueryRequest{PageSize: notionPageSize}

	for {
		var resp *notionapi.DatabaseQueryResponse
		err := s.call(ctx, func() (err error) {
			resp, err = s.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
			return err
		})
		if err != nil {
			return nil, err
		}

		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		req.StartCursor = notionapi.Cursor(resp.NextCursor)
	}
}

// pageBlocks returns the text of each top-level block of a page.
func (s *NotionSource) pageBlocks(ctx context.Context, pageID string) ([]string, error) {
	var texts []string
	pagination := &notionapi.Pagination{PageSize: notionPageSize}

	for {
		var resp *notionapi.GetChildrenResponse
		err := s.call(ctx, func() (err error) {
			resp, err = s.client.Block.GetChildren(ctx, notionapi.BlockID(pageID), pagination)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, b := range resp.Results {
			texts = append(texts, blockText(b))
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return texts, nil
		}
		pagination.StartCursor = notionapi.Cursor(resp.NextCursor)
	}
}

// call runs one Notion request behind the rate limiter, the retry policy and
// the circuit breaker.
func (s *NotionSource) call(ctx context.Context, fn func() error) error {
	err := s.cb.Execute(ctx, func() error {
		return retry.Do(ctx, s.retryConfig, func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			return classifyNotionError(fn())
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		logger.Warn("Notion request rejected", zap.String("breaker", s.cb.Name()), zap.Error(err))
		return fmt.Errorf("%s: %w", s.cb.Name(), err)
	}
	return err
}

// classifyNotionError maps API errors onto the retry policy. Transport and
// decoding failures stay retryable.
func classifyNotionError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *notionapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("notion request failed: %w", err)
	}

	wrapped := fmt.Errorf("notion API error: %d %s: %w", apiErr.Status, apiErr.Code, err)
	switch {
	case apiErr.Status == http.StatusNotFound || apiErr.Code == "object_not_found":
		return retry.Permanent(fmt.Errorf("%w: %v", ErrCollectionNotFound, wrapped))
	case apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500:
		return wrapped
	default:
		return retry.Permanent(wrapped)
	}
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimRight(raw, "/"), "/v1"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q has no scheme or host", raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// originTransport sends API requests to another origin, keeping their paths.
type originTransport struct {
	origin *url.URL
	next   http.RoundTripper
}

func (t *originTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.origin.Scheme
	r.URL.Host = t.origin.Host
	r.Host = t.origin.Host
	return t.next.RoundTrip(r)
}
