package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tezfolio/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPriceTestClient(t *testing.T, handler http.Handler) (*PriceClient, *int32) {
	t.Helper()
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	limiter := ratelimit.NewLimiter(map[ratelimit.Queue]time.Duration{
		ratelimit.QueuePricing: time.Millisecond,
	}, zap.NewNop())
	t.Cleanup(limiter.Close)
	return NewPriceClient(srv.URL, time.Second, time.Minute, limiter, zap.NewNop()), &requests
}

func TestSpotPriceCachesPerPair(t *testing.T) {
	c, requests := newPriceTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/prices/XTZ-USD/spot", r.URL.Path)
		w.Write([]byte(`{"data":{"amount":"1.23","base":"XTZ","currency":"USD"}}`))
	}))

	price, err := c.SpotPrice(context.Background(), "XTZ-USD")
	require.NoError(t, err)
	assert.Equal(t, 1.23, price)

	// Second read is served from the TTL cache.
	price, err = c.SpotPrice(context.Background(), "XTZ-USD")
	require.NoError(t, err)
	assert.Equal(t, 1.23, price)
	assert.Equal(t, int32(1), atomic.LoadInt32(requests))
}

func TestSpotPriceMalformedAmount(t *testing.T) {
	c, _ := newPriceTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"amount":"not-a-number"}}`))
	}))
	_, err := c.SpotPrice(context.Background(), "XTZ-USD")
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMalformed, kind)
}

func TestAllPricesSurvivesOneFailedLeg(t *testing.T) {
	c, _ := newPriceTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/prices/XTZ-EUR/spot" {
			// Rate-limited legs fail fast without retries.
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":{"amount":"1.23"}}`))
	}))

	set := c.AllPrices(context.Background(), "XTZ")
	require.NotNil(t, set.USD)
	assert.Equal(t, 1.23, *set.USD)
	assert.Nil(t, set.EUR)
}

func TestAllPricesBothLegs(t *testing.T) {
	c, _ := newPriceTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/prices/XTZ-EUR/spot" {
			w.Write([]byte(`{"data":{"amount":"1.10"}}`))
			return
		}
		w.Write([]byte(`{"data":{"amount":"1.23"}}`))
	}))

	set := c.AllPrices(context.Background(), "XTZ")
	require.NotNil(t, set.USD)
	require.NotNil(t, set.EUR)
	assert.Equal(t, 1.23, *set.USD)
	assert.Equal(t, 1.10, *set.EUR)
}
