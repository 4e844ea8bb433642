package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fetcher retrieves the current price a vendor lists for a material.
type Fetcher interface {
	FetchPrice(ctx context.Context, cfg VendorConfig, query string) (float64, error)
}

// HTTPFetcher queries vendor search pages over plain HTTP with retries
// and exponential backoff.
type HTTPFetcher struct {
	client *http.Client
	logger *slog.Logger
}

func NewHTTPFetcher(timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (f *HTTPFetcher) FetchPrice(ctx context.Context, cfg VendorConfig, query string) (float64, error) {
	target := strings.ReplaceAll(cfg.SearchURLPattern, "{query}", url.QueryEscape(query))

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Second << (attempt - 1)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := f.get(ctx, target)
		if err != nil {
			lastErr = err
			f.logger.Warn("vendor page fetch failed", "url", target, "attempt", attempt+1, "error", err)
			continue
		}
		return f.extractPrice(body, cfg.PriceSelector)
	}
	return 0, fmt.Errorf("scrape: fetch %s: %w", target, lastErr)
}

func (f *HTTPFetcher) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "smetacat-pricebot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// extractPrice locates the price element in the page body. The selector is
// matched as a plain substring (typically a class name) and the text of the
// following element is parsed as a price.
//
// TODO: parse the page with an HTML tokenizer so PriceSelector can address
// a real DOM node instead of relying on substring position.
func (f *HTTPFetcher) extractPrice(body, selector string) (float64, error) {
	if selector == "" {
		return 0, ErrPriceNotFound
	}
	idx := strings.Index(body, selector)
	if idx < 0 {
		return 0, ErrPriceNotFound
	}
	rest := body[idx+len(selector):]
	if open := strings.IndexByte(rest, '>'); open >= 0 {
		rest = rest[open+1:]
	}
	if end := strings.IndexByte(rest, '<'); end >= 0 {
		rest = rest[:end]
	}
	return ParsePrice(rest)
}
