package entity

import "time"

// Transaction is a normalized recent operation for one wallet, shared by both
// chain variants.
type Transaction struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Target    string    `json:"target"`
	Amount    float64   `json:"amount"`
	Kind      string    `json:"kind,omitempty"`
}
