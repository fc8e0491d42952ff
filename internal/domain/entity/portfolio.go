package entity

import "time"

// ChainStats holds per-chain subtotals inside PortfolioStats.
type ChainStats struct {
	WalletCount int     `json:"walletCount"`
	Balance     float64 `json:"balance"`
	USDValue    float64 `json:"usdValue"`
	EURValue    float64 `json:"eurValue"`
}

// TopToken is a token position rolled up across wallets, keyed by
// (ContractAddress, Symbol).
type TopToken struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	ContractAddress string  `json:"contractAddress"`
	Balance         float64 `json:"balance"`
	USDValue        float64 `json:"usdValue"`
	Wallets         int     `json:"wallets"`
}

// PortfolioStats is fully derived from the wallet list and carries no
// independent lifecycle. ImpliedUSDRate/ImpliedEURRate are back-solved from
// the first wallet holding both a nonzero native balance and a fiat value;
// there is no dedicated portfolio-level rate fetch.
type PortfolioStats struct {
	TotalBalance     float64                  `json:"totalBalance"`
	SpendableBalance float64                  `json:"spendableBalance"`
	StakedBalance    float64                  `json:"stakedBalance"`
	UnstakedBalance  float64                  `json:"unstakedBalance"`
	TotalUSD         float64                  `json:"totalUsd"`
	TotalEUR         float64                  `json:"totalEur"`
	ImpliedUSDRate   float64                  `json:"impliedUsdRate"`
	ImpliedEURRate   float64                  `json:"impliedEurRate"`
	Chains           map[ChainType]ChainStats `json:"chains"`
	WalletCount      int                      `json:"walletCount"`
	TokenCount       int                      `json:"tokenCount"`
	TopTokens        []TopToken               `json:"topTokens"`
	LastUpdated      time.Time                `json:"lastUpdated"`
}
