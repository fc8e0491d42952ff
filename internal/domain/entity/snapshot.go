package entity

import "time"

// Snapshot records one wallet's balance at a point in time, for timeline
// features. Recorded after each successful full refresh.
type Snapshot struct {
	WalletID  string           `json:"walletId"`
	Timestamp time.Time        `json:"timestamp"`
	Balance   float64          `json:"balance"`
	Tokens    int              `json:"tokens"`
	Status    DelegationStatus `json:"status,omitempty"`
}
