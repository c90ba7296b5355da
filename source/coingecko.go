package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"

	"omnidata/logger"
)

// Quote looks up the current price for a symbol. ok is false when the price
// could not be resolved; the lookup never returns an error to the caller.
type Quote interface {
	Fetch(ctx context.Context, symbol string) (price float64, ok bool)
}

// CoinGeckoSource resolves prices against a CoinGecko-compatible simple
// price endpoint. Only symbols present in the id table are ever fetched;
// anything else is reported as unknown without a network call.
type CoinGeckoSource struct {
	baseURL string
	ids     map[string]string
	client  *resty.Client
	log     *logger.Log
}

// NewCoinGeckoSource creates a price source with a bounded request timeout.
func NewCoinGeckoSource(baseURL string, ids map[string]string, timeout time.Duration) *CoinGeckoSource {
	client := resty.New()
	client.SetTimeout(timeout)

	return &CoinGeckoSource{
		baseURL: baseURL,
		ids:     ids,
		client:  client,
		log:     logger.GetLogger(),
	}
}

// Fetch performs one GET against the price API. Every failure mode (timeout,
// connection error, non-2xx status, malformed body, missing field) degrades
// to not-ok; retries, if any, belong to the caller.
func (s *CoinGeckoSource) Fetch(ctx context.Context, symbol string) (float64, bool) {
	log := s.log.WithComponent("source").WithFields(logger.Fields{"symbol": symbol})

	id, mapped := s.ids[symbol]
	if !mapped {
		log.Debug("symbol not mapped to a provider id, skipping lookup")
		return 0, false
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           id,
			"vs_currencies": "usd",
		}).
		Get(s.baseURL)
	if err != nil {
		log.WithError(err).Warn("price lookup failed")
		return 0, false
	}
	if !resp.IsSuccess() {
		log.WithFields(logger.Fields{"status": resp.StatusCode()}).Warn("price API returned non-success status")
		return 0, false
	}

	// Expected shape: {"bitcoin":{"usd":65000.12}}
	var body map[string]map[string]float64
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		log.WithError(err).Warn("malformed price API response")
		return 0, false
	}

	quote, found := body[id]
	if !found {
		log.Warn("price API response missing provider id")
		return 0, false
	}
	price, found := quote["usd"]
	if !found {
		log.Warn("price API response missing usd quote")
		return 0, false
	}

	logger.IncrementLiveFetch()
	log.WithFields(logger.Fields{"price": price}).Debug("price resolved")
	return price, true
}
