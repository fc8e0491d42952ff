package aggregate

import (
	"errors"
	"testing"
	"time"

	"tezfolio/internal/domain/entity"
	"tezfolio/internal/fetch"
	"tezfolio/internal/priority"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLegResult() *legResult {
	return &legResult{errs: make(map[priority.Capability]error)}
}

func TestMergeAppliesAllLegs(t *testing.T) {
	a := &WalletAggregator{}
	w := entity.Wallet{Chain: entity.ChainTezos, Address: "tz1abc"}

	usd, eur := 1.5, 1.2
	res := newLegResult()
	res.breakdown = fetch.BalanceBreakdown{Total: 100, Spendable: 70, Staked: 25, Unstaked: 5}
	res.delegation = fetch.Delegation{Status: entity.StatusStaked, Delegate: "tz1baker"}
	res.tokens = []entity.TokenBalance{{Symbol: "USDT", Balance: 10}}
	res.domain = "alice.tez"
	res.details = &entity.DelegationDetails{Baker: "tz1baker"}
	res.prices = fetch.PriceSet{USD: &usd, EUR: &eur}
	res.priceAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	merged := a.merge(w, res)

	assert.Equal(t, 100.0, merged.Balance)
	assert.Equal(t, 70.0, merged.SpendableBalance)
	assert.Equal(t, 25.0, merged.StakedBalance)
	assert.Equal(t, 5.0, merged.UnstakedBalance)
	assert.Equal(t, entity.StatusStaked, merged.Status)
	assert.Equal(t, "tz1baker", merged.DelegatedTo)
	assert.Equal(t, "alice.tez", merged.TezDomain)
	require.NotNil(t, merged.DelegationDetails)
	require.NotNil(t, merged.USDValue)
	require.NotNil(t, merged.EURValue)
	assert.InDelta(t, 150, *merged.USDValue, 1e-9)
	assert.InDelta(t, 120, *merged.EURValue, 1e-9)
	require.NotNil(t, merged.LastUpdated)
	assert.Equal(t, res.priceAt, *merged.LastUpdated)

	// The balance invariant holds with no tolerance.
	assert.Equal(t, merged.Balance,
		merged.SpendableBalance+merged.StakedBalance+merged.UnstakedBalance)
}

func TestMergeBalanceLegFailureZeroesBalances(t *testing.T) {
	a := &WalletAggregator{}
	w := entity.Wallet{Chain: entity.ChainTezos, Balance: 50, StakedBalance: 10}

	res := newLegResult()
	res.fail(priority.CapBalance, errors.New("upstream down"))
	res.tokens = []entity.TokenBalance{{Symbol: "USDT", Balance: 10}}

	merged := a.merge(w, res)

	assert.Zero(t, merged.Balance)
	assert.Zero(t, merged.SpendableBalance)
	assert.Zero(t, merged.StakedBalance)
	assert.Zero(t, merged.UnstakedBalance)
	// Sibling legs still apply.
	assert.Len(t, merged.Tokens, 1)
}

func TestMergeTokenLegFailureReplacesWithEmptySet(t *testing.T) {
	a := &WalletAggregator{}
	w := entity.Wallet{
		Chain:  entity.ChainTezos,
		Tokens: []entity.TokenBalance{{Symbol: "OLD", Balance: 1}},
	}

	res := newLegResult()
	res.breakdown = fetch.BalanceBreakdown{Total: 10, Spendable: 10}
	res.fail(priority.CapTokens, errors.New("explorer down"))

	merged := a.merge(w, res)

	// Tokens are replaced wholesale: the failed leg yields an empty set, not
	// the previous holdings.
	require.NotNil(t, merged.Tokens)
	assert.Empty(t, merged.Tokens)
	assert.Equal(t, 10.0, merged.Balance)
}

func TestMergeFailedPriceLegClearsFiat(t *testing.T) {
	a := &WalletAggregator{}
	stale := 999.0
	w := entity.Wallet{Chain: entity.ChainEtherlink, USDValue: &stale, EURValue: &stale}

	res := newLegResult()
	res.breakdown = fetch.BalanceBreakdown{Total: 3}

	merged := a.merge(w, res)

	// Fiat values are recomputed each refresh, never carried over stale.
	assert.Nil(t, merged.USDValue)
	assert.Nil(t, merged.EURValue)
	assert.Equal(t, 3.0, merged.Balance)
}

func TestMergeDelegationLegFailureFallsBackToUndelegated(t *testing.T) {
	a := &WalletAggregator{}
	w := entity.Wallet{
		Chain:       entity.ChainTezos,
		Status:      entity.StatusStaked,
		DelegatedTo: "tz1baker",
	}

	res := newLegResult()
	res.fail(priority.CapDelegation, errors.New("timeout"))

	merged := a.merge(w, res)
	assert.Equal(t, entity.StatusUndelegated, merged.Status)
	assert.Empty(t, merged.DelegatedTo)
}

func TestMergeEtherlinkIgnoresTezosFields(t *testing.T) {
	a := &WalletAggregator{}
	w := entity.Wallet{Chain: entity.ChainEtherlink}

	res := newLegResult()
	res.breakdown = fetch.BalanceBreakdown{Total: 5, Spendable: 5}

	merged := a.merge(w, res)
	assert.Equal(t, 5.0, merged.Balance)
	assert.Zero(t, merged.SpendableBalance)
	assert.Empty(t, merged.Status)
	assert.Empty(t, merged.TezDomain)
	assert.Nil(t, merged.DelegationDetails)
}

func TestBaseAsset(t *testing.T) {
	assert.Equal(t, "XTZ", baseAsset(entity.ChainTezos))
	assert.Equal(t, "ETH", baseAsset(entity.ChainEtherlink))
}

func TestNeedsRefresh(t *testing.T) {
	a := &WalletAggregator{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Minute)
	old := now.Add(-time.Hour)

	base := entity.Wallet{
		Chain:       entity.ChainTezos,
		LastUpdated: &fresh,
		Tokens:      []entity.TokenBalance{},
		TezDomain:   "alice.tez",
	}

	t.Run("fresh complete wallet does not refresh", func(t *testing.T) {
		assert.False(t, a.NeedsRefresh(base, now))
	})

	t.Run("never refreshed", func(t *testing.T) {
		w := base
		w.LastUpdated = nil
		assert.True(t, a.NeedsRefresh(w, now))
	})

	t.Run("aged out", func(t *testing.T) {
		w := base
		w.LastUpdated = &old
		assert.True(t, a.NeedsRefresh(w, now))
	})

	t.Run("tokens never fetched", func(t *testing.T) {
		w := base
		w.Tokens = nil
		assert.True(t, a.NeedsRefresh(w, now))
	})

	t.Run("unresolved tezos domain", func(t *testing.T) {
		w := base
		w.TezDomain = ""
		assert.True(t, a.NeedsRefresh(w, now))
	})

	t.Run("delegate without details", func(t *testing.T) {
		w := base
		w.DelegatedTo = "tz1baker"
		assert.True(t, a.NeedsRefresh(w, now))
		w.DelegationDetails = &entity.DelegationDetails{Baker: "tz1baker"}
		assert.False(t, a.NeedsRefresh(w, now))
	})

	t.Run("etherlink needs no domain", func(t *testing.T) {
		w := entity.Wallet{
			Chain:       entity.ChainEtherlink,
			LastUpdated: &fresh,
			Tokens:      []entity.TokenBalance{},
		}
		assert.False(t, a.NeedsRefresh(w, now))
	})
}

func TestPendingAddTransitions(t *testing.T) {
	p := &pendingAdd{wallet: entity.Wallet{ID: "a"}, state: statePending}
	assert.Equal(t, "pending", p.state.String())

	p.transition(stateCommitted, zap.NewNop())
	assert.Equal(t, stateCommitted, p.state)

	q := &pendingAdd{wallet: entity.Wallet{ID: "b"}, state: statePending}
	q.transition(stateRolledBack, zap.NewNop())
	assert.Equal(t, "rolled-back", q.state.String())
}
