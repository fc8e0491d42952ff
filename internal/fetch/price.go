package fetch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"tezfolio/internal/metrics"
	"tezfolio/internal/ratelimit"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const priceCacheCleanup = 10 * time.Minute

// PriceSet holds one asset's spot prices. A nil leg means that currency's
// fetch failed; the other leg is still usable.
type PriceSet struct {
	USD *float64
	EUR *float64
}

// PriceClient fetches fiat spot prices per currency pair from a Coinbase-style
// API. Every call goes through the pricing provider queue; each pair is
// independently TTL-cached.
type PriceClient struct {
	http    *httpJSON
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	baseURL string
	cache   *gocache.Cache
}

// NewPriceClient creates a price fetcher bound to the shared rate limiter.
func NewPriceClient(baseURL string, timeout, cacheTTL time.Duration, limiter *ratelimit.Limiter, logger *zap.Logger) *PriceClient {
	l := logger.Named("PriceClient")
	return &PriceClient{
		http:    newHTTPJSON(timeout, l),
		limiter: limiter,
		logger:  l,
		baseURL: trimTrailingSlash(baseURL),
		cache:   gocache.New(cacheTTL, priceCacheCleanup),
	}
}

type spotResponse struct {
	Data struct {
		Amount   string `json:"amount"`
		Base     string `json:"base"`
		Currency string `json:"currency"`
	} `json:"data"`
}

// SpotPrice fetches the current spot price for a pair such as "XTZ-USD".
func (c *PriceClient) SpotPrice(ctx context.Context, pair string) (float64, error) {
	if cached, found := c.cache.Get(pair); found {
		if price, ok := cached.(float64); ok {
			return price, nil
		}
	}

	requestURL := fmt.Sprintf("%s/v2/prices/%s/spot", c.baseURL, pair)
	var resp spotResponse
	err := withRetry(ctx, c.logger, "spot-price", func(ctx context.Context) error {
		start := time.Now()
		callErr := c.limiter.Do(ctx, ratelimit.QueuePricing, func(ctx context.Context) error {
			return c.http.get("spot-price", requestURL, &resp)
		})
		metrics.FetchDuration.WithLabelValues("spot-price").Observe(time.Since(start).Seconds())
		if callErr != nil {
			metrics.FetchTotal.WithLabelValues("spot-price", "error").Inc()
			return callErr
		}
		metrics.FetchTotal.WithLabelValues("spot-price", "ok").Inc()
		return nil
	})
	if err != nil {
		return 0, err
	}

	price, err := strconv.ParseFloat(resp.Data.Amount, 64)
	if err != nil {
		return 0, newError(KindMalformed, "spot-price", requestURL,
			fmt.Errorf("unparseable amount %q: %w", resp.Data.Amount, err))
	}
	c.cache.Set(pair, price, gocache.DefaultExpiration)
	return price, nil
}

// AllPrices fetches the USD and EUR spot prices for base in parallel. One
// failing leg never fails the whole operation; the failed leg is simply nil.
func (c *PriceClient) AllPrices(ctx context.Context, base string) PriceSet {
	var set PriceSet
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if price, err := c.SpotPrice(ctx, base+"-USD"); err == nil {
			set.USD = &price
		} else {
			c.logger.Debug("usd price leg failed", zap.String("base", base), zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if price, err := c.SpotPrice(ctx, base+"-EUR"); err == nil {
			set.EUR = &price
		} else {
			c.logger.Debug("eur price leg failed", zap.String("base", base), zap.Error(err))
		}
	}()
	wg.Wait()
	return set
}
