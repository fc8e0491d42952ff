package aggregate

import (
	"context"
	"strconv"

	"tezfolio/internal/domain/entity"
	"tezfolio/internal/fetch"
	"tezfolio/internal/priority"

	"go.uber.org/zap"
)

const defaultHistoryDays = 30

// RunCapability executes one capability fetch for a wallet through the cache,
// for use as a scheduler session runner. Failures are logged and swallowed;
// the session only tracks settlement.
func (a *WalletAggregator) RunCapability(ctx context.Context, w entity.Wallet, cap priority.Capability) {
	var err error
	switch cap {
	case priority.CapBalance:
		if w.Chain == entity.ChainTezos {
			_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
				func(ctx context.Context) (fetch.BalanceBreakdown, error) {
					return a.tzkt.GetBalanceBreakdown(ctx, w.Address)
				})
		} else {
			_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
				func(ctx context.Context) (float64, error) {
					return a.etherlink.GetNativeBalance(ctx, w.Address)
				})
		}
	case priority.CapDelegation:
		_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
			func(ctx context.Context) (fetch.Delegation, error) {
				return a.tzkt.GetDelegation(ctx, w.Address)
			})
	case priority.CapTokens:
		if w.Chain == entity.ChainTezos {
			_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
				func(ctx context.Context) ([]entity.TokenBalance, error) {
					return a.tzkt.GetTokenBalances(ctx, w.Address)
				})
		} else {
			_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
				func(ctx context.Context) ([]entity.TokenBalance, error) {
					return a.etherlink.GetTokenBalances(ctx, w.Address)
				})
		}
	case priority.CapDomain:
		_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
			func(ctx context.Context) (string, error) {
				return a.tzkt.ReverseDomain(ctx, w.Address)
			})
	case priority.CapCounters:
		_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
			func(ctx context.Context) (fetch.Counters, error) {
				return a.etherlink.GetCounters(ctx, w.Address)
			})
	case priority.CapHistory:
		days := defaultHistoryDays
		_, err = cached(a, ctx, w.Chain, cap, w.Address, strconv.Itoa(days),
			func(ctx context.Context) ([]entity.BalancePoint, error) {
				if w.Chain == entity.ChainTezos {
					return a.tzkt.GetBalanceHistory(ctx, w.Address, days)
				}
				return a.etherlink.GetBalanceHistory(ctx, w.Address, days)
			})
	case priority.CapTransactions:
		_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
			func(ctx context.Context) ([]entity.Transaction, error) {
				if w.Chain == entity.ChainTezos {
					return a.tzkt.GetTransactions(ctx, w.Address, 0)
				}
				return a.etherlink.GetTransactions(ctx, w.Address, 0)
			})
	case priority.CapRewards:
		_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
			func(ctx context.Context) (*entity.WalletRewards, error) {
				return a.tzkt.GetRewards(ctx, w.Address)
			})
	case priority.CapDelegationDetails:
		if w.DelegatedTo == "" {
			return
		}
		_, err = cached(a, ctx, w.Chain, cap, w.Address, "",
			func(ctx context.Context) (*entity.DelegationDetails, error) {
				return a.tzkt.GetDelegationDetails(ctx, w.Address, w.DelegatedTo, "")
			})
	}
	if err != nil {
		a.logger.Debug("scheduled capability fetch failed",
			zap.String("address", w.Address),
			zap.String("capability", string(cap)),
			zap.Error(err))
	}
}

// History reads the wallet's balance history through the cache.
func (a *WalletAggregator) History(ctx context.Context, w entity.Wallet, days int) ([]entity.BalancePoint, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	return cached(a, ctx, w.Chain, priority.CapHistory, w.Address, strconv.Itoa(days),
		func(ctx context.Context) ([]entity.BalancePoint, error) {
			if w.Chain == entity.ChainTezos {
				return a.tzkt.GetBalanceHistory(ctx, w.Address, days)
			}
			return a.etherlink.GetBalanceHistory(ctx, w.Address, days)
		})
}

// WarmPrices pre-fetches the primary chain asset's fiat price, used by the
// cache warming hook shortly after startup.
func (a *WalletAggregator) WarmPrices(ctx context.Context) error {
	_, err := a.prices.SpotPrice(ctx, "XTZ-USD")
	return err
}
