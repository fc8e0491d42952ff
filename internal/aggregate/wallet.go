package aggregate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tezfolio/internal/cache"
	"tezfolio/internal/domain/entity"
	"tezfolio/internal/fetch"
	"tezfolio/internal/metrics"
	"tezfolio/internal/priority"
	"tezfolio/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// staleAfter is the wallet age past which the load-time staleness check
// queues a background refresh.
const staleAfter = 5 * time.Minute

const maxConcurrentRefreshes = 8

// pendingState is the explicit state machine for an optimistic add:
// pending until the seeding refresh settles, then committed or rolled back.
type pendingState int

const (
	statePending pendingState = iota
	stateCommitted
	stateRolledBack
)

func (s pendingState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateCommitted:
		return "committed"
	case stateRolledBack:
		return "rolled-back"
	}
	return "unknown"
}

// pendingAdd tracks one optimistic wallet add.
type pendingAdd struct {
	wallet entity.Wallet
	state  pendingState
}

func (p *pendingAdd) transition(to pendingState, logger *zap.Logger) {
	logger.Debug("pending add transition",
		zap.String("wallet", p.wallet.ID),
		zap.String("from", p.state.String()),
		zap.String("to", to.String()))
	p.state = to
}

// WalletAggregator fans out all capability fetches for one wallet, merges
// them into the wallet view model and persists the result. A failing
// capability substitutes a fallback (zeroed balances, empty token set, nil
// domain/delegation-details, nil prices) and never blocks sibling legs.
type WalletAggregator struct {
	tzkt      *fetch.TzktClient
	etherlink *fetch.EtherlinkClient
	prices    *fetch.PriceClient
	cache     *cache.Store
	wallets   *store.WalletStore
	logger    *zap.Logger
}

// NewWalletAggregator wires the aggregator to the shared fetchers, cache and
// store.
func NewWalletAggregator(
	tzkt *fetch.TzktClient,
	etherlink *fetch.EtherlinkClient,
	prices *fetch.PriceClient,
	cacheStore *cache.Store,
	wallets *store.WalletStore,
	logger *zap.Logger,
) *WalletAggregator {
	return &WalletAggregator{
		tzkt:      tzkt,
		etherlink: etherlink,
		prices:    prices,
		cache:     cacheStore,
		wallets:   wallets,
		logger:    logger.Named("WalletAggregator"),
	}
}

func (a *WalletAggregator) staleTime(chain entity.ChainType, cap priority.Capability) time.Duration {
	tier, ok := priority.TierOf(chain, cap)
	if !ok {
		tier = priority.Medium
	}
	return priority.StaleTimeFor(tier, cap)
}

// cached reads through the cache for one capability leg: a fresh entry short-
// circuits the fetch, otherwise fn runs and its result is stored.
func cached[T any](a *WalletAggregator, ctx context.Context, chain entity.ChainType, cap priority.Capability, address, params string, fn func(context.Context) (T, error)) (T, error) {
	key := cache.Key{Capability: cap, Address: address, Params: params}
	if v, ok := a.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	a.cache.Set(key, v, a.staleTime(chain, cap))
	return v, nil
}

// legResult captures one settled capability leg for the merge.
type legResult struct {
	breakdown  fetch.BalanceBreakdown
	delegation fetch.Delegation
	tokens     []entity.TokenBalance
	domain     string
	details    *entity.DelegationDetails
	prices     fetch.PriceSet
	priceAt    time.Time

	errs map[priority.Capability]error
	mu   sync.Mutex
}

func (r *legResult) fail(cap priority.Capability, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[cap] = err
}

// Refresh fans out the wallet's merge legs in parallel and replaces the
// wallet's derived fields wholesale. The returned error map records which
// legs fell back; the refresh itself never fails as a whole.
func (a *WalletAggregator) Refresh(ctx context.Context, w entity.Wallet) (entity.Wallet, map[priority.Capability]error) {
	res := &legResult{errs: make(map[priority.Capability]error)}

	g, gctx := errgroup.WithContext(ctx)

	if w.Chain == entity.ChainTezos {
		g.Go(func() error {
			breakdown, err := cached(a, gctx, w.Chain, priority.CapBalance, w.Address, "",
				func(ctx context.Context) (fetch.BalanceBreakdown, error) {
					return a.tzkt.GetBalanceBreakdown(ctx, w.Address)
				})
			if err != nil {
				res.fail(priority.CapBalance, err)
				return nil
			}
			res.breakdown = breakdown
			return nil
		})
		g.Go(func() error {
			delegation, err := cached(a, gctx, w.Chain, priority.CapDelegation, w.Address, "",
				func(ctx context.Context) (fetch.Delegation, error) {
					return a.tzkt.GetDelegation(ctx, w.Address)
				})
			if err != nil {
				res.fail(priority.CapDelegation, err)
				return nil
			}
			res.delegation = delegation
			return nil
		})
		g.Go(func() error {
			tokens, err := cached(a, gctx, w.Chain, priority.CapTokens, w.Address, "",
				func(ctx context.Context) ([]entity.TokenBalance, error) {
					return a.tzkt.GetTokenBalances(ctx, w.Address)
				})
			if err != nil {
				res.fail(priority.CapTokens, err)
				return nil
			}
			res.tokens = tokens
			return nil
		})
		g.Go(func() error {
			domain, err := cached(a, gctx, w.Chain, priority.CapDomain, w.Address, "",
				func(ctx context.Context) (string, error) {
					return a.tzkt.ReverseDomain(ctx, w.Address)
				})
			if err != nil {
				res.fail(priority.CapDomain, err)
				return nil
			}
			res.domain = domain
			return nil
		})
	} else {
		g.Go(func() error {
			balance, err := cached(a, gctx, w.Chain, priority.CapBalance, w.Address, "",
				func(ctx context.Context) (float64, error) {
					return a.etherlink.GetNativeBalance(ctx, w.Address)
				})
			if err != nil {
				res.fail(priority.CapBalance, err)
				return nil
			}
			res.breakdown = fetch.BalanceBreakdown{Total: balance}
			return nil
		})
		g.Go(func() error {
			tokens, err := cached(a, gctx, w.Chain, priority.CapTokens, w.Address, "",
				func(ctx context.Context) ([]entity.TokenBalance, error) {
					return a.etherlink.GetTokenBalances(ctx, w.Address)
				})
			if err != nil {
				res.fail(priority.CapTokens, err)
				return nil
			}
			res.tokens = tokens
			return nil
		})
	}

	g.Go(func() error {
		res.prices = a.prices.AllPrices(gctx, baseAsset(w.Chain))
		// The price leg's settle time stands in for this refresh's logical
		// time.
		res.priceAt = time.Now().UTC()
		return nil
	})

	_ = g.Wait()

	// Delegation details need the delegate from the delegation leg, so they
	// run after the first wave.
	if w.Chain == entity.ChainTezos && res.delegation.Delegate != "" {
		details, err := cached(a, ctx, w.Chain, priority.CapDelegationDetails, w.Address, "",
			func(ctx context.Context) (*entity.DelegationDetails, error) {
				return a.tzkt.GetDelegationDetails(ctx, w.Address, res.delegation.Delegate, res.delegation.DelegateAlias)
			})
		if err != nil {
			res.fail(priority.CapDelegationDetails, err)
		} else {
			res.details = details
		}
	}

	merged := a.merge(w, res)

	if len(res.errs) == 0 {
		metrics.RefreshTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.RefreshTotal.WithLabelValues("partial").Inc()
		for cap, err := range res.errs {
			a.logger.Warn("capability fell back during refresh",
				zap.String("address", w.Address),
				zap.String("capability", string(cap)),
				zap.Error(err))
		}
	}
	return merged, res.errs
}

// merge applies the settled legs to the wallet, substituting fallbacks for
// failed legs. Token sets are replaced wholesale, fiat values are recomputed
// from the current balance and price, never carried over stale.
func (a *WalletAggregator) merge(w entity.Wallet, res *legResult) entity.Wallet {
	if _, failed := res.errs[priority.CapBalance]; failed {
		w.Balance = 0
		w.SpendableBalance = 0
		w.StakedBalance = 0
		w.UnstakedBalance = 0
	} else {
		w.Balance = res.breakdown.Total
		if w.Chain == entity.ChainTezos {
			w.SpendableBalance = res.breakdown.Spendable
			w.StakedBalance = res.breakdown.Staked
			w.UnstakedBalance = res.breakdown.Unstaked
		}
	}

	if w.Chain == entity.ChainTezos {
		if _, failed := res.errs[priority.CapDelegation]; failed {
			w.Status = entity.StatusUndelegated
			w.DelegatedTo = ""
		} else {
			w.Status = res.delegation.Status
			w.DelegatedTo = res.delegation.Delegate
		}
		if _, failed := res.errs[priority.CapDomain]; failed {
			w.TezDomain = ""
		} else {
			w.TezDomain = res.domain
		}
		w.DelegationDetails = res.details
	}

	if _, failed := res.errs[priority.CapTokens]; failed {
		w.Tokens = []entity.TokenBalance{}
	} else {
		w.Tokens = res.tokens
	}

	w.USDValue = nil
	w.EURValue = nil
	if res.prices.USD != nil {
		v := w.Balance * *res.prices.USD
		w.USDValue = &v
	}
	if res.prices.EUR != nil {
		v := w.Balance * *res.prices.EUR
		w.EURValue = &v
	}

	at := res.priceAt
	w.LastUpdated = &at
	return w
}

func baseAsset(chain entity.ChainType) string {
	if chain == entity.ChainTezos {
		return "XTZ"
	}
	return "ETH"
}

// RefreshAndSave refreshes one wallet, persists the merged result and records
// a snapshot.
func (a *WalletAggregator) RefreshAndSave(ctx context.Context, w entity.Wallet) (entity.Wallet, error) {
	merged, _ := a.Refresh(ctx, w)
	if err := a.wallets.Update(merged); err != nil {
		return merged, err
	}
	if err := a.wallets.AppendSnapshot(entity.Snapshot{
		WalletID:  merged.ID,
		Timestamp: *merged.LastUpdated,
		Balance:   merged.Balance,
		Tokens:    len(merged.Tokens),
		Status:    merged.Status,
	}); err != nil {
		a.logger.Warn("failed to record snapshot", zap.String("wallet", merged.ID), zap.Error(err))
	}
	return merged, nil
}

// RefreshAll refreshes every tracked wallet in parallel. A failure in one
// wallet's refresh never affects another's; per-capability provider rate
// limits are the only throttle beyond the concurrency cap.
func (a *WalletAggregator) RefreshAll(ctx context.Context) ([]entity.Wallet, error) {
	wallets, err := a.wallets.List()
	if err != nil {
		return nil, err
	}
	refreshed := make([]entity.Wallet, len(wallets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRefreshes)
	for i, w := range wallets {
		g.Go(func() error {
			merged, saveErr := a.RefreshAndSave(gctx, w)
			if saveErr != nil {
				a.logger.Error("failed to persist refreshed wallet",
					zap.String("wallet", w.ID), zap.Error(saveErr))
				merged = w
			}
			refreshed[i] = merged
			return nil
		})
	}
	_ = g.Wait()
	return refreshed, nil
}

// NeedsRefresh is the load-time staleness check: missing tokens, an
// unresolved domain on Tezos, missing delegation details despite a delegate,
// or simple age all queue a background refresh.
func (a *WalletAggregator) NeedsRefresh(w entity.Wallet, now time.Time) bool {
	if w.LastUpdated == nil || now.Sub(*w.LastUpdated) > staleAfter {
		return true
	}
	if w.Tokens == nil {
		return true
	}
	if w.Chain == entity.ChainTezos {
		if w.TezDomain == "" {
			return true
		}
		if w.DelegatedTo != "" && w.DelegationDetails == nil {
			return true
		}
	}
	return false
}

// RefreshStale refreshes, in parallel, every wallet the staleness check
// flags.
func (a *WalletAggregator) RefreshStale(ctx context.Context) error {
	wallets, err := a.wallets.List()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRefreshes)
	for _, w := range wallets {
		if !a.NeedsRefresh(w, now) {
			continue
		}
		g.Go(func() error {
			if _, err := a.RefreshAndSave(gctx, w); err != nil {
				a.logger.Warn("stale refresh failed", zap.String("wallet", w.ID), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// AddWallet resolves the given address or .tez domain, stores an optimistic
// zeroed wallet, then runs the seeding refresh. If the balance leg fails the
// optimistic wallet is rolled back; failures in secondary legs leave a
// partial wallet as a valid terminal state.
func (a *WalletAggregator) AddWallet(ctx context.Context, chain entity.ChainType, addressOrDomain, label string) (entity.Wallet, error) {
	address := addressOrDomain
	domain := ""
	if name := strings.ToLower(addressOrDomain); chain == entity.ChainTezos && strings.HasSuffix(name, ".tez") {
		resolved, err := a.tzkt.ResolveDomain(ctx, name)
		if err != nil {
			return entity.Wallet{}, fmt.Errorf("failed to resolve domain %s: %w", name, err)
		}
		if resolved == "" {
			return entity.Wallet{}, fmt.Errorf("domain %s does not resolve to an address", name)
		}
		address = resolved
		domain = name
		if label == "" {
			label = domain
		}
	}
	if label == "" {
		label = address
	}

	w := entity.Wallet{
		ID:        uuid.NewString(),
		Chain:     chain,
		Address:   address,
		Label:     label,
		AddedAt:   time.Now().UTC(),
		TezDomain: domain,
	}
	if chain == entity.ChainTezos {
		w.Status = entity.StatusUndelegated
	}

	pending := &pendingAdd{wallet: w, state: statePending}
	if err := a.wallets.Add(w); err != nil {
		return entity.Wallet{}, err
	}

	merged, errs := a.Refresh(ctx, w)
	if _, balanceFailed := errs[priority.CapBalance]; balanceFailed {
		pending.transition(stateRolledBack, a.logger)
		if err := a.wallets.Remove(w.ID); err != nil {
			a.logger.Error("failed to roll back optimistic wallet",
				zap.String("wallet", w.ID), zap.Error(err))
		}
		return entity.Wallet{}, fmt.Errorf("initial fetch for %s failed: %w", address, errs[priority.CapBalance])
	}

	pending.transition(stateCommitted, a.logger)
	if err := a.wallets.Update(merged); err != nil {
		return merged, err
	}
	return merged, nil
}
