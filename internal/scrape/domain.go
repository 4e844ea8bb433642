// Package scrape collects vendor website prices for catalog materials and
// records them as website-sourced observations.
package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// VendorConfig describes how one vendor's site is queried.
type VendorConfig struct {
	// SearchURLPattern contains a {query} placeholder replaced with the
	// URL-escaped material name.
	SearchURLPattern string
	// PriceSelector is the CSS selector of the price element on the
	// result page.
	PriceSelector string
	RateLimit     time.Duration
	MaxRetries    int
	Timeout       time.Duration
}

// Defaults applied when a vendor has no explicit configuration.
const (
	DefaultRateLimit  = time.Second
	DefaultMaxRetries = 3
	DefaultTimeout    = 10 * time.Second
)

type vendorConfigJSON struct {
	SearchURLPattern string  `json:"search_url_pattern"`
	PriceSelector    string  `json:"price_selector"`
	RateLimit        float64 `json:"rate_limit"`
	MaxRetries       int     `json:"max_retries"`
	Timeout          float64 `json:"timeout"`
}

// ParseVendorConfig decodes a vendor's stored configuration JSON. Durations
// are given in seconds. Zero fields keep the package defaults.
func ParseVendorConfig(raw string) (VendorConfig, error) {
	var decoded vendorConfigJSON
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return VendorConfig{}, fmt.Errorf("scrape: parse vendor config: %w", err)
	}
	return VendorConfig{
		SearchURLPattern: decoded.SearchURLPattern,
		PriceSelector:    decoded.PriceSelector,
		RateLimit:        time.Duration(decoded.RateLimit * float64(time.Second)),
		MaxRetries:       decoded.MaxRetries,
		Timeout:          time.Duration(decoded.Timeout * float64(time.Second)),
	}, nil
}

// WithDefaults fills zero fields from the package defaults.
func (c VendorConfig) WithDefaults() VendorConfig {
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Result summarizes one vendor scrape run.
type Result struct {
	VendorID int64         `json:"vendor_id"`
	SourceID int64         `json:"source_id"`
	Scraped  int           `json:"scraped"`
	NotFound int           `json:"not_found"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

var (
	// ErrNoWebsite rejects scraping a vendor without a configured site.
	ErrNoWebsite = errors.New("scrape: vendor has no website url")
	// ErrPriceNotFound means the page loaded but held no recognizable price.
	ErrPriceNotFound = errors.New("scrape: price not found on page")
)
