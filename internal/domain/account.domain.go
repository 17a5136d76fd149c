package domain

import "time"

// Account holds a customer's savings balance in minor units (cents).
// Version is bumped on every successful balance mutation and is the
// compare-and-swap stamp for optimistic concurrency.
type Account struct {
	ID        string    `json:"id"`
	OwnerName string    `json:"owner_name"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
