package domain

import "time"

// BlockedIP is an enforced block-list entry. Creation is idempotent on IP;
// removal is an explicit operator action.
type BlockedIP struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// IP holds the normalized address string (e.g. 192.0.2.1 or 2001:db8::1).
	IP string `gorm:"size:45;uniqueIndex;not null"`

	Reason string `gorm:"size:255"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
