package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetStatusClassification(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	h := newHTTPJSON(time.Second, zap.NewNop())

	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusBadRequest, KindMalformed},
		{http.StatusNotFound, KindMalformed},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
		{http.StatusServiceUnavailable, KindServer},
	}
	for _, tc := range cases {
		status = tc.status
		err := h.get("balance", srv.URL, nil)
		require.Error(t, err, "status %d", tc.status)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, tc.want, kind, "status %d", tc.status)
	}
}

func TestGetDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance":42}`))
	}))
	t.Cleanup(srv.Close)
	h := newHTTPJSON(time.Second, zap.NewNop())

	var out struct {
		Balance int `json:"balance"`
	}
	require.NoError(t, h.get("balance", srv.URL, &out))
	assert.Equal(t, 42, out.Balance)

	// A nil target discards the body.
	require.NoError(t, h.get("balance", srv.URL, nil))
}
