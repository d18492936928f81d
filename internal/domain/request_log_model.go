package domain

import "time"

// RequestLog records a single inbound request. Rows are written once by the
// tracking middleware and only ever read afterwards; retention is handled by
// an external purge job.
type RequestLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	IP   string `gorm:"size:45;not null;index"`
	Path string `gorm:"size:255;not null"`

	// Status is the response status for this request, 0 when the surrounding
	// handler did not report one.
	Status int `gorm:"not null;default:0"`

	Country string `gorm:"size:100"`
	City    string `gorm:"size:100"`

	Timestamp time.Time `gorm:"autoCreateTime;index"`
}
