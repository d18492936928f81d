package database

import (
	"context"
	"errors"
	"time"

	"kestrel/internal/domain"

	"gorm.io/gorm"
)

var ErrDatabaseNotInitialized = errors.New("database not initialised")

// AddressCount is one GROUP BY ip aggregation row.
type AddressCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// LabelCount is a generic GROUP BY aggregation row (e.g. per country).
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// InsertRequestLog persists one request record.
func InsertRequestLog(ctx context.Context, record *domain.RequestLog) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Create(record).Error
}

// CountRequestsPerIP returns, for the window [start, end), every address with
// strictly more than threshold requests.
func CountRequestsPerIP(ctx context.Context, start, end time.Time, threshold int) ([]AddressCount, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var counts []AddressCount
	err := db.Model(&domain.RequestLog{}).
		Select("ip, COUNT(*) AS count").
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Group("ip").
		Having("COUNT(*) > ?", threshold).
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// SensitivePathHit is one in-window request whose path matched a needle.
type SensitivePathHit struct {
	IP   string
	Path string
}

// FindSensitivePathHits returns every (ip, path) pair in the window whose path
// contains one of the needles. Matching is substring-based on purpose so
// traversal variants are caught too.
func FindSensitivePathHits(ctx context.Context, start, end time.Time, needles []string) ([]SensitivePathHit, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}
	if len(needles) == 0 {
		return nil, nil
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	pathMatch := db.Session(&gorm.Session{NewDB: true})
	for _, needle := range needles {
		pathMatch = pathMatch.Or("path LIKE ?", "%"+needle+"%")
	}

	var hits []SensitivePathHit
	err := db.Model(&domain.RequestLog{}).
		Select("ip, path").
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Where(pathMatch).
		Scan(&hits).Error
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// CountNotFoundPerIP returns addresses with strictly more than threshold
// not-found responses in the window, plus the number of in-window rows that
// carry any response status at all so callers can tell "no data" from "no
// offenders".
func CountNotFoundPerIP(ctx context.Context, start, end time.Time, threshold int) ([]AddressCount, int64, error) {
	if DB == nil {
		return nil, 0, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var withStatus int64
	err := db.Model(&domain.RequestLog{}).
		Where("timestamp >= ? AND timestamp < ? AND status > 0", start, end).
		Count(&withStatus).Error
	if err != nil {
		return nil, 0, err
	}
	if withStatus == 0 {
		return nil, 0, nil
	}

	var counts []AddressCount
	err = db.Model(&domain.RequestLog{}).
		Select("ip, COUNT(*) AS count").
		Where("timestamp >= ? AND timestamp < ? AND status = ?", start, end, 404).
		Group("ip").
		Having("COUNT(*) > ?", threshold).
		Scan(&counts).Error
	if err != nil {
		return nil, 0, err
	}
	return counts, withStatus, nil
}

// LatestLocation returns the most recent recorded country/city for an address.
func LatestLocation(ctx context.Context, ip string) (country, city string, err error) {
	if DB == nil {
		return "", "", ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var record domain.RequestLog
	err = db.Where("ip = ?", ip).Order("timestamp DESC").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", nil
		}
		return "", "", err
	}
	return record.Country, record.City, nil
}

// GetRequestLogPage returns one page of request logs, newest first, optionally
// filtered to a single address.
func GetRequestLogPage(ctx context.Context, ip string, page, pageSize int) ([]domain.RequestLog, int64, error) {
	if DB == nil {
		return nil, 0, ErrDatabaseNotInitialized
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	query := db.Model(&domain.RequestLog{})
	if ip != "" {
		query = query.Where("ip = ?", ip)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []domain.RequestLog
	err := query.Order("timestamp DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// TrafficStats aggregates the dashboard numbers.
type TrafficStats struct {
	TotalRequests       int64          `json:"total_requests"`
	RequestsLast24h     int64          `json:"requests_24h"`
	BlockedIPs          int64          `json:"blocked_ips"`
	ActiveSuspiciousIPs int64          `json:"active_suspicious_ips"`
	TopCountries        []LabelCount   `json:"top_countries"`
	TopIPs              []AddressCount `json:"top_ips"`
}

// GetTrafficStats collects the overview counters shown on the admin surface.
func GetTrafficStats(ctx context.Context, now time.Time) (*TrafficStats, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	stats := &TrafficStats{}

	if err := db.Model(&domain.RequestLog{}).Count(&stats.TotalRequests).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.RequestLog{}).
		Where("timestamp >= ?", now.Add(-24*time.Hour)).
		Count(&stats.RequestsLast24h).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.BlockedIP{}).Count(&stats.BlockedIPs).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.SuspiciousIP{}).
		Where("is_active = ?", true).
		Count(&stats.ActiveSuspiciousIPs).Error; err != nil {
		return nil, err
	}

	err := db.Model(&domain.RequestLog{}).
		Select("country AS label, COUNT(*) AS count").
		Where("country <> '' AND country <> 'unknown'").
		Group("country").
		Order("count DESC").
		Limit(5).
		Scan(&stats.TopCountries).Error
	if err != nil {
		return nil, err
	}

	err = db.Model(&domain.RequestLog{}).
		Select("ip, COUNT(*) AS count").
		Group("ip").
		Order("count DESC").
		Limit(5).
		Scan(&stats.TopIPs).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}
