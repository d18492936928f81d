package domain

import "time"

// SuspiciousIP is an address flagged by the anomaly detector. Entries are
// never deleted, only deactivated, so the audit trail survives. Repeated
// detections update the same row: Reason and RequestCount reflect the most
// recent run, FirstDetected never changes.
type SuspiciousIP struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	IP string `gorm:"size:45;uniqueIndex;not null"`

	// Reason records the most severe heuristic from the latest run that
	// flagged this address.
	Reason string `gorm:"size:255;not null"`

	// RequestCount is the latest window's evidence count, a replace rather
	// than a running total.
	RequestCount int `gorm:"not null;default:0"`

	Country string `gorm:"size:100"`
	City    string `gorm:"size:100"`

	// FlaggedPaths lists sensitive paths this address touched, when the
	// sensitive-path heuristic contributed to the flag.
	FlaggedPaths StringList `gorm:"type:text"`

	FirstDetected time.Time `gorm:"autoCreateTime"`
	LastDetected  time.Time

	IsActive bool `gorm:"not null;default:true;index"`
}
