package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kestrel/internal/domain"

	"gorm.io/gorm"
)

// ErrSuspiciousNotFound is returned when a promotion targets an address the
// registry has never flagged.
var ErrSuspiciousNotFound = errors.New("suspicious entry not found")

// SuspiciousUpdate carries one detector finding for an address.
type SuspiciousUpdate struct {
	IP           string
	Reason       string
	RequestCount int
	Country      string
	City         string
	FlaggedPaths []string
}

// UpsertSuspiciousIP applies a detector finding: first detection creates an
// active entry, later detections replace Reason/RequestCount and advance
// LastDetected while FirstDetected and IsActive stay untouched. Concurrent
// runs over overlapping windows are last-writer-wins on the mutable fields.
func UpsertSuspiciousIP(ctx context.Context, update SuspiciousUpdate, now time.Time) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var existing domain.SuspiciousIP
	err := db.Where("ip = ?", update.IP).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry := domain.SuspiciousIP{
			IP:            update.IP,
			Reason:        update.Reason,
			RequestCount:  update.RequestCount,
			Country:       update.Country,
			City:          update.City,
			FlaggedPaths:  update.FlaggedPaths,
			LastDetected:  now,
			FirstDetected: now,
			IsActive:      true,
		}
		return db.Create(&entry).Error
	case err != nil:
		return err
	}

	changes := map[string]any{
		"reason":        update.Reason,
		"request_count": update.RequestCount,
		"last_detected": now,
	}
	if update.Country != "" {
		changes["country"] = update.Country
	}
	if update.City != "" {
		changes["city"] = update.City
	}
	if len(update.FlaggedPaths) > 0 {
		changes["flagged_paths"] = domain.StringList(update.FlaggedPaths)
	}

	return db.Model(&domain.SuspiciousIP{}).
		Where("ip = ?", update.IP).
		Updates(changes).Error
}

// DeactivateSuspiciousIP flips IsActive off. Repeating the call, or calling it
// for an unknown address, is a no-op.
func DeactivateSuspiciousIP(ctx context.Context, ip string) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Model(&domain.SuspiciousIP{}).
		Where("ip = ?", ip).
		Update("is_active", false).Error
}

// DeactivateStaleSuspiciousIPs marks entries inactive once they go maxAge
// without a fresh detection. Entries are kept for audit, never deleted.
func DeactivateStaleSuspiciousIPs(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	if DB == nil {
		return 0, ErrDatabaseNotInitialized
	}
	if maxAge <= 0 {
		return 0, nil
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	result := db.Model(&domain.SuspiciousIP{}).
		Where("is_active = ? AND last_detected < ?", true, now.Add(-maxAge)).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// GetSuspiciousIP loads a single registry entry by address.
func GetSuspiciousIP(ctx context.Context, ip string) (*domain.SuspiciousIP, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entry domain.SuspiciousIP
	if err := db.Where("ip = ?", ip).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListSuspiciousIPs returns registry entries, optionally only active ones,
// most recently detected first.
func ListSuspiciousIPs(ctx context.Context, activeOnly bool) ([]domain.SuspiciousIP, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	query := db.Model(&domain.SuspiciousIP{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var entries []domain.SuspiciousIP
	if err := query.Order("last_detected DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// PromoteSuspiciousToBlock copies a registry entry into the block list, citing
// the registry's reason. Already-blocked addresses are a no-op, so concurrent
// promotion from a detector run and an operator action cannot duplicate.
func PromoteSuspiciousToBlock(ctx context.Context, ip string) (bool, error) {
	entry, err := GetSuspiciousIP(ctx, ip)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: %s", ErrSuspiciousNotFound, ip)
		}
		return false, err
	}

	reason := fmt.Sprintf("Blocked from suspicious IP list: %s", entry.Reason)
	return InsertBlockedIP(ctx, ip, reason)
}
