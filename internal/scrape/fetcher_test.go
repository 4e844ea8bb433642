package scrape

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHTTPFetcherExtractsSelectorPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "цемент м500", r.URL.Query().Get("q"))
		w.Write([]byte(`<div class="product"><span class="price">1 250,50 руб.</span></div>`))
	}))
	defer srv.Close()

	cfg := VendorConfig{
		SearchURLPattern: srv.URL + "/search?q={query}",
		PriceSelector:    `class="price"`,
		MaxRetries:       1,
	}

	price, err := testFetcher().FetchPrice(context.Background(), cfg, "цемент м500")
	require.NoError(t, err)
	require.InDelta(t, 1250.5, price, 0.001)
}

func TestHTTPFetcherPriceMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<div class="product">нет в наличии</div>`))
	}))
	defer srv.Close()

	cfg := VendorConfig{SearchURLPattern: srv.URL + "?q={query}", PriceSelector: `class="price"`, MaxRetries: 1}
	_, err := testFetcher().FetchPrice(context.Background(), cfg, "кирпич")
	require.ErrorIs(t, err, ErrPriceNotFound)
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`<span class="price">500</span>`))
	}))
	defer srv.Close()

	cfg := VendorConfig{SearchURLPattern: srv.URL + "?q={query}", PriceSelector: `class="price"`, MaxRetries: 2}
	price, err := testFetcher().FetchPrice(context.Background(), cfg, "цемент")
	require.NoError(t, err)
	require.InDelta(t, 500, price, 0.001)
	require.Equal(t, 2, calls)
}
