package entity

import "time"

// ChainType discriminates the two wallet variants. Every reader of
// chain-specific fields must switch on it exhaustively.
type ChainType string

const (
	ChainTezos     ChainType = "tezos"
	ChainEtherlink ChainType = "etherlink"
)

// DelegationStatus is derived purely from (stakedBalance>0, delegate present).
type DelegationStatus string

const (
	StatusUndelegated DelegationStatus = "undelegated"
	StatusDelegated   DelegationStatus = "delegated"
	StatusStaked      DelegationStatus = "staked"
)

// Wallet is the aggregated view model for one tracked address.
// Common fields apply to both chains; the staking/delegation/domain fields
// are meaningful only when Chain == ChainTezos. Balance is the summing source
// of truth: for Tezos wallets Balance == SpendableBalance + StakedBalance +
// UnstakedBalance with no tolerance.
type Wallet struct {
	ID          string     `json:"id"`
	Chain       ChainType  `json:"chain"`
	Address     string     `json:"address"`
	Label       string     `json:"label"`
	AddedAt     time.Time  `json:"addedAt"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`

	Balance float64 `json:"balance"`

	SpendableBalance  float64            `json:"spendableBalance,omitempty"`
	StakedBalance     float64            `json:"stakedBalance,omitempty"`
	UnstakedBalance   float64            `json:"unstakedBalance,omitempty"`
	Status            DelegationStatus   `json:"status,omitempty"`
	DelegatedTo       string             `json:"delegatedTo,omitempty"`
	DelegationDetails *DelegationDetails `json:"delegationDetails,omitempty"`
	TezDomain         string             `json:"tezDomain,omitempty"`

	Tokens   []TokenBalance `json:"tokens,omitempty"`
	USDValue *float64       `json:"usdValue,omitempty"`
	EURValue *float64       `json:"eurValue,omitempty"`
}

// DeriveStatus computes the delegation status from a staked amount and the
// presence of a delegate. Staked balance takes precedence over delegation.
func DeriveStatus(stakedBalance float64, delegate string) DelegationStatus {
	switch {
	case stakedBalance > 0:
		return StatusStaked
	case delegate != "":
		return StatusDelegated
	default:
		return StatusUndelegated
	}
}
