package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tezfolio/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// rpcResponder answers every JSON-RPC request with the given result.
func rpcResponder(t *testing.T, result string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			ID any `json:"id"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		w.Header().Set("Content-Type", "application/json")
		resp, err := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
		require.NoError(t, err)
		w.Write(resp)
	}
}

func newEtherlinkTestClient(t *testing.T, rpc, explorer http.Handler) *EtherlinkClient {
	t.Helper()
	rpcSrv := httptest.NewServer(rpc)
	t.Cleanup(rpcSrv.Close)
	explorerSrv := httptest.NewServer(explorer)
	t.Cleanup(explorerSrv.Close)

	limiter := ratelimit.NewLimiter(map[ratelimit.Queue]time.Duration{
		ratelimit.QueueEtherlink: time.Millisecond,
	}, zap.NewNop())
	t.Cleanup(limiter.Close)

	c, err := NewEtherlinkClient(rpcSrv.URL, explorerSrv.URL, time.Second, limiter, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGetNativeBalance(t *testing.T) {
	// 1.5 native units = 0x14d1120d7b160000 wei.
	c := newEtherlinkTestClient(t, rpcResponder(t, "0x14d1120d7b160000"), http.NotFoundHandler())

	balance, err := c.GetNativeBalance(context.Background(), "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, balance, 1e-9)
}

func TestGetEtherlinkTokenBalances(t *testing.T) {
	explorer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/token-balances")
		w.Write([]byte(`[
			{"value":"2500000","token":{"address":"0xtok1","name":"Stable","symbol":"USDT","decimals":"6","type":"ERC-20"}},
			{"value":"1","token":{"address":"0xnft","name":"Art","symbol":"ART","decimals":"0","type":"ERC-721"}},
			{"value":"0","token":{"address":"0xzero","name":"Zero","symbol":"ZRO","decimals":"18","type":"ERC-20"}},
			{"value":"9","token":{"address":"0xbad","name":"Bad","symbol":"BAD","decimals":"x","type":"ERC-20"}}
		]`))
	})
	c := newEtherlinkTestClient(t, http.NotFoundHandler(), explorer)

	tokens, err := c.GetTokenBalances(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "USDT", tokens[0].Symbol)
	assert.InDelta(t, 2.5, tokens[0].Balance, 1e-9)
}

func TestGetEtherlinkBalanceHistory(t *testing.T) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	dayBefore := time.Now().UTC().AddDate(0, 0, -2).Format("2006-01-02")
	today := time.Now().UTC().Format("2006-01-02")

	explorer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"date":"` + today + `","value":"3000000000000000000"},
			{"date":"` + yesterday + `","value":"2000000000000000000"},
			{"date":"` + dayBefore + `","value":"1000000000000000000"}
		]`))
	})
	c := newEtherlinkTestClient(t, http.NotFoundHandler(), explorer)

	points, err := c.GetBalanceHistory(context.Background(), "0xabc", 30)
	require.NoError(t, err)

	// The current incomplete day is excluded; points arrive oldest first.
	require.Len(t, points, 2)
	assert.InDelta(t, 1.0, points[0].Balance, 1e-9)
	assert.InDelta(t, 2.0, points[1].Balance, 1e-9)
	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp))
}

func TestGetEtherlinkTransactions(t *testing.T) {
	explorer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
			{"hash":"0xh1","timestamp":"2026-03-01T10:00:00Z","value":"1000000000000000000",
				"from":{"hash":"0xsender"},"to":{"hash":"0xabc"}},
			{"hash":"0xh2","timestamp":"2026-03-01T09:00:00Z","value":"500000000000000000",
				"from":{"hash":"0xabc"},"to":{"hash":"0xother"}},
			{"hash":"0xh3","timestamp":"2026-03-01T08:00:00Z","value":"1",
				"from":{"hash":"0xabc"},"to":{"hash":"0xother"}}
		]}`))
	})
	c := newEtherlinkTestClient(t, http.NotFoundHandler(), explorer)

	txs, err := c.GetTransactions(context.Background(), "0xabc", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2, "limit truncates the page")
	assert.Equal(t, "0xh1", txs[0].Hash)
	assert.InDelta(t, 1.0, txs[0].Amount, 1e-9)
	assert.Equal(t, "0xsender", txs[0].Sender)
}

func TestGetCounters(t *testing.T) {
	explorer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/counters")
		w.Write([]byte(`{"transactions_count":"12","token_transfers_count":"4"}`))
	})
	c := newEtherlinkTestClient(t, rpcResponder(t, "0x7"), explorer)

	counters, err := c.GetCounters(context.Background(), "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), counters.Nonce)
	assert.Equal(t, uint64(12), counters.Transactions)
	assert.Equal(t, uint64(4), counters.TokenTransfers)
}
