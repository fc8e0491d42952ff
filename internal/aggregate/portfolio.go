package aggregate

import (
	"sort"
	"time"

	"tezfolio/internal/domain/entity"
)

// DefaultTopTokens is the default truncation for the top-token rollup.
const DefaultTopTokens = 5

type tokenKey struct {
	contract string
	symbol   string
}

// ComputeStats derives portfolio-level statistics from the wallet list. It is
// a pure function: the same wallet list always yields the same stats and the
// input is never mutated. The fiat totals back-solve an implied exchange rate
// from the first wallet holding both a nonzero balance and a fiat value; no
// dedicated portfolio-level rate is fetched.
func ComputeStats(wallets []entity.Wallet, topN int) entity.PortfolioStats {
	if topN <= 0 {
		topN = DefaultTopTokens
	}
	stats := entity.PortfolioStats{
		Chains: make(map[entity.ChainType]entity.ChainStats),
	}

	impliedUSD, impliedEUR := impliedRates(wallets)
	stats.ImpliedUSDRate = impliedUSD
	stats.ImpliedEURRate = impliedEUR

	rollup := make(map[tokenKey]*entity.TopToken)
	var lastUpdated time.Time

	for _, w := range wallets {
		stats.WalletCount++
		stats.TotalBalance += w.Balance
		if w.Chain == entity.ChainTezos {
			stats.SpendableBalance += w.SpendableBalance
			stats.StakedBalance += w.StakedBalance
			stats.UnstakedBalance += w.UnstakedBalance
		} else {
			stats.SpendableBalance += w.Balance
		}

		usd := fiatValue(w.USDValue, w.Balance, impliedUSD)
		eur := fiatValue(w.EURValue, w.Balance, impliedEUR)
		stats.TotalUSD += usd
		stats.TotalEUR += eur

		cs := stats.Chains[w.Chain]
		cs.WalletCount++
		cs.Balance += w.Balance
		cs.USDValue += usd
		cs.EURValue += eur
		stats.Chains[w.Chain] = cs

		if w.LastUpdated != nil && w.LastUpdated.After(lastUpdated) {
			lastUpdated = *w.LastUpdated
		}

		for _, t := range w.Tokens {
			key := tokenKey{contract: t.ContractAddress, symbol: t.Symbol}
			entry, ok := rollup[key]
			if !ok {
				entry = &entity.TopToken{
					Symbol:          t.Symbol,
					Name:            t.Name,
					ContractAddress: t.ContractAddress,
				}
				rollup[key] = entry
			}
			entry.Balance += t.Balance
			entry.USDValue += t.USDValue
			entry.Wallets++
		}
	}

	stats.TokenCount = len(rollup)
	stats.TopTokens = topTokens(rollup, topN)

	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}
	stats.LastUpdated = lastUpdated
	return stats
}

// impliedRates back-solves fiat rates from the first wallet with both a
// nonzero balance and a fiat value.
func impliedRates(wallets []entity.Wallet) (usd, eur float64) {
	for _, w := range wallets {
		if usd == 0 && w.Balance > 0 && w.USDValue != nil {
			usd = *w.USDValue / w.Balance
		}
		if eur == 0 && w.Balance > 0 && w.EURValue != nil {
			eur = *w.EURValue / w.Balance
		}
		if usd != 0 && eur != 0 {
			break
		}
	}
	return usd, eur
}

func fiatValue(direct *float64, balance, impliedRate float64) float64 {
	if direct != nil {
		return *direct
	}
	return balance * impliedRate
}

func topTokens(rollup map[tokenKey]*entity.TopToken, topN int) []entity.TopToken {
	tokens := make([]entity.TopToken, 0, len(rollup))
	for _, t := range rollup {
		tokens = append(tokens, *t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Balance != tokens[j].Balance {
			return tokens[i].Balance > tokens[j].Balance
		}
		return tokens[i].Symbol < tokens[j].Symbol
	})
	if len(tokens) > topN {
		tokens = tokens[:topN]
	}
	return tokens
}
