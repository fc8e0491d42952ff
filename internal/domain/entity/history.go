package entity

import "time"

// BalancePoint is one sample of a wallet's balance history, in display units.
type BalancePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
}
