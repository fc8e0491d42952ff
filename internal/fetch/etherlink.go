package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"time"

	"tezfolio/internal/domain/entity"
	"tezfolio/internal/metrics"
	"tezfolio/internal/ratelimit"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const weiPerNative = 1e18

// Counters are the Etherlink account activity counters from the explorer.
type Counters struct {
	Transactions   uint64 `json:"transactions"`
	TokenTransfers uint64 `json:"tokenTransfers"`
	Nonce          uint64 `json:"nonce"`
}

// EtherlinkClient fetches Etherlink account data over JSON-RPC (native
// balance, nonce) and a block-explorer REST API (tokens, transactions,
// counters, history). Every call goes through the etherlink provider queue.
type EtherlinkClient struct {
	eth         *ethclient.Client
	http        *httpJSON
	limiter     *ratelimit.Limiter
	logger      *zap.Logger
	explorerURL string
	timeout     time.Duration
}

// NewEtherlinkClient dials the RPC endpoint and binds the explorer client to
// the shared rate limiter.
func NewEtherlinkClient(rpcURL, explorerURL string, timeout time.Duration, limiter *ratelimit.Limiter, logger *zap.Logger) (*EtherlinkClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	l := logger.Named("EtherlinkClient")

	dialCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	eth, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Etherlink RPC %s: %w", rpcURL, err)
	}

	return &EtherlinkClient{
		eth:         eth,
		http:        newHTTPJSON(timeout, l),
		limiter:     limiter,
		logger:      l,
		explorerURL: trimTrailingSlash(explorerURL),
		timeout:     timeout,
	}, nil
}

// Close releases the RPC connection.
func (c *EtherlinkClient) Close() {
	c.eth.Close()
}

func (c *EtherlinkClient) doRPC(ctx context.Context, capability string, fn func(context.Context) error) error {
	return withRetry(ctx, c.logger, capability, func(ctx context.Context) error {
		start := time.Now()
		err := c.limiter.Do(ctx, ratelimit.QueueEtherlink, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			if err := fn(callCtx); err != nil {
				kind := KindNetwork
				if errors.Is(err, context.DeadlineExceeded) {
					kind = KindTimeout
				}
				return newError(kind, capability, "etherlink-rpc", err)
			}
			return nil
		})
		metrics.FetchDuration.WithLabelValues(capability).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.FetchTotal.WithLabelValues(capability, "error").Inc()
			return err
		}
		metrics.FetchTotal.WithLabelValues(capability, "ok").Inc()
		return nil
	})
}

func (c *EtherlinkClient) doREST(ctx context.Context, capability, requestURL string, out any) error {
	return withRetry(ctx, c.logger, capability, func(ctx context.Context) error {
		start := time.Now()
		err := c.limiter.Do(ctx, ratelimit.QueueEtherlink, func(ctx context.Context) error {
			return c.http.get(capability, requestURL, out)
		})
		metrics.FetchDuration.WithLabelValues(capability).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.FetchTotal.WithLabelValues(capability, "error").Inc()
			return err
		}
		metrics.FetchTotal.WithLabelValues(capability, "ok").Inc()
		return nil
	})
}

// GetNativeBalance fetches the native balance in display units (wei / 1e18).
func (c *EtherlinkClient) GetNativeBalance(ctx context.Context, address string) (float64, error) {
	var wei *big.Int
	err := c.doRPC(ctx, "balance", func(ctx context.Context) error {
		var rpcErr error
		wei, rpcErr = c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
		return rpcErr
	})
	if err != nil {
		return 0, err
	}
	balance, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(weiPerNative)).Float64()
	return balance, nil
}

// GetCounters fetches the account activity counters: the nonce over RPC plus
// the explorer's transaction and token-transfer counts.
func (c *EtherlinkClient) GetCounters(ctx context.Context, address string) (Counters, error) {
	var counters Counters
	err := c.doRPC(ctx, "counters", func(ctx context.Context) error {
		nonce, rpcErr := c.eth.NonceAt(ctx, common.HexToAddress(address), nil)
		if rpcErr != nil {
			return rpcErr
		}
		counters.Nonce = nonce
		return nil
	})
	if err != nil {
		return Counters{}, err
	}

	var raw struct {
		TransactionsCount   string `json:"transactions_count"`
		TokenTransfersCount string `json:"token_transfers_count"`
	}
	requestURL := fmt.Sprintf("%s/api/v2/addresses/%s/counters", c.explorerURL, url.PathEscape(address))
	if err := c.doREST(ctx, "counters", requestURL, &raw); err != nil {
		return Counters{}, err
	}
	counters.Transactions, _ = strconv.ParseUint(raw.TransactionsCount, 10, 64)
	counters.TokenTransfers, _ = strconv.ParseUint(raw.TokenTransfersCount, 10, 64)
	return counters, nil
}

type explorerTokenBalance struct {
	Value string `json:"value"`
	Token struct {
		Address  string `json:"address"`
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals string `json:"decimals"`
		IconURL  string `json:"icon_url"`
		Type     string `json:"type"`
	} `json:"token"`
}

// GetTokenBalances fetches ERC-20 holdings from the explorer, normalized by
// each token's decimals. Non-fungible standards are skipped. An empty set is
// a valid success.
func (c *EtherlinkClient) GetTokenBalances(ctx context.Context, address string) ([]entity.TokenBalance, error) {
	var raw []explorerTokenBalance
	requestURL := fmt.Sprintf("%s/api/v2/addresses/%s/token-balances", c.explorerURL, url.PathEscape(address))
	if err := c.doREST(ctx, "tokens", requestURL, &raw); err != nil {
		return nil, err
	}

	tokens := make([]entity.TokenBalance, 0, len(raw))
	for _, tb := range raw {
		if tb.Token.Type != "" && tb.Token.Type != "ERC-20" {
			continue
		}
		decimals, err := strconv.ParseInt(tb.Token.Decimals, 10, 32)
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(tb.Value, 64)
		if err != nil || value == 0 {
			continue
		}
		tokens = append(tokens, entity.TokenBalance{
			Symbol:          tb.Token.Symbol,
			Name:            tb.Token.Name,
			Balance:         value / pow10(int32(decimals)),
			Decimals:        int32(decimals),
			ContractAddress: tb.Token.Address,
			ThumbnailURI:    tb.Token.IconURL,
		})
	}
	return tokens, nil
}

type explorerBalanceDay struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// GetBalanceHistory fetches the explorer's per-day balance series. The
// current incomplete day is excluded and trailing zero-balance points are
// stripped.
func (c *EtherlinkClient) GetBalanceHistory(ctx context.Context, address string, days int) ([]entity.BalancePoint, error) {
	if days <= 0 {
		days = 1
	}
	var raw []explorerBalanceDay
	requestURL := fmt.Sprintf("%s/api/v2/addresses/%s/coin-balance-history-by-day", c.explorerURL, url.PathEscape(address))
	if err := c.doREST(ctx, "history", requestURL, &raw); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	points := make([]entity.BalancePoint, 0, len(raw))
	for _, d := range raw {
		ts, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) || !ts.Before(today) {
			continue
		}
		wei, ok := new(big.Float).SetString(d.Value)
		if !ok {
			continue
		}
		balance, _ := new(big.Float).Quo(wei, big.NewFloat(weiPerNative)).Float64()
		points = append(points, entity.BalancePoint{Timestamp: ts, Balance: balance})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	points = stripTrailingZeros(points)
	return thinPoints(points, maxHistoryPoints), nil
}

type explorerTransaction struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Value     string    `json:"value"`
	From      struct {
		Hash string `json:"hash"`
	} `json:"from"`
	To struct {
		Hash string `json:"hash"`
	} `json:"to"`
}

// GetTransactions fetches the wallet's most recent transactions from the
// explorer.
func (c *EtherlinkClient) GetTransactions(ctx context.Context, address string, limit int) ([]entity.Transaction, error) {
	if limit <= 0 {
		limit = transactionPageLimit
	}
	var raw struct {
		Items []explorerTransaction `json:"items"`
	}
	requestURL := fmt.Sprintf("%s/api/v2/addresses/%s/transactions", c.explorerURL, url.PathEscape(address))
	if err := c.doREST(ctx, "transactions", requestURL, &raw); err != nil {
		return nil, err
	}

	txs := make([]entity.Transaction, 0, limit)
	for _, tx := range raw.Items {
		if len(txs) >= limit {
			break
		}
		value, err := strconv.ParseFloat(tx.Value, 64)
		if err != nil {
			value = 0
		}
		txs = append(txs, entity.Transaction{
			Hash:      tx.Hash,
			Timestamp: tx.Timestamp,
			Sender:    tx.From.Hash,
			Target:    tx.To.Hash,
			Amount:    value / weiPerNative,
			Kind:      "transaction",
		})
	}
	return txs, nil
}
