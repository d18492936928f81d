package database

import (
	"context"
	"errors"
	"time"

	"kestrel/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetGeolocation reads the durable cache tier. An entry older than ttl is
// treated as absent: it is deleted so the next successful lookup replaces it
// instead of piling up beside it.
func GetGeolocation(ctx context.Context, ip string, now time.Time, ttl time.Duration) (*domain.GeolocationCache, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entry domain.GeolocationCache
	err := db.Where("ip = ?", ip).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if entry.Expired(now, ttl) {
		if err := db.Where("ip = ?", ip).Delete(&domain.GeolocationCache{}).Error; err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &entry, nil
}

// PutGeolocation writes the durable cache tier, replacing any previous row for
// the address. At most one row per address is kept.
func PutGeolocation(ctx context.Context, ip, country, city string, now time.Time) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	entry := domain.GeolocationCache{
		IP:         ip,
		Country:    country,
		City:       city,
		ResolvedAt: now,
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip"}},
		DoUpdates: clause.Assignments(map[string]any{
			"country":     country,
			"city":        city,
			"resolved_at": now,
		}),
	}).Create(&entry).Error
}
