package entity

// DelegationDetails describes the baker a wallet delegates to. It is derived
// from the baker's own account data plus the wallet's reward history and is
// recomputed on every refresh, never persisted on its own.
type DelegationDetails struct {
	Baker           string  `json:"baker"`
	BakerName       string  `json:"bakerName"`
	StakingBalance  float64 `json:"stakingBalance"`
	StakingCapacity float64 `json:"stakingCapacity"`
	FreeSpace       float64 `json:"freeSpace"`
	Fee             float64 `json:"fee"`
	EstimatedROI    float64 `json:"estimatedRoi"`
}

// WalletRewards holds reward figures for one baking cycle, all in XTZ.
type WalletRewards struct {
	Cycle             int64   `json:"cycle"`
	TotalRewards      float64 `json:"totalRewards"`
	FutureRewards     float64 `json:"futureRewards"`
	DelegatedBalance  float64 `json:"delegatedBalance"`
	StakingRewards    float64 `json:"stakingRewards"`
	DelegatingRewards float64 `json:"delegatingRewards"`
	BakingPower       float64 `json:"bakingPower"`
}
