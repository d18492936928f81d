package database

import (
	"context"

	"kestrel/internal/domain"

	"gorm.io/gorm/clause"
)

// ListBlockedIPs returns all enforced addresses as plain strings, for the
// in-memory gate snapshot.
func ListBlockedIPs(ctx context.Context) ([]string, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var ips []string
	if err := db.Model(&domain.BlockedIP{}).Pluck("ip", &ips).Error; err != nil {
		return nil, err
	}
	return ips, nil
}

// ListBlockedEntries returns the full block list, newest first.
func ListBlockedEntries(ctx context.Context) ([]domain.BlockedIP, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.BlockedIP
	if err := db.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// InsertBlockedIP creates a block entry iff the address is not blocked yet.
// Duplicate inserts, including concurrent ones, collapse into a no-op; the
// first writer's reason sticks. Returns whether a row was created.
func InsertBlockedIP(ctx context.Context, ip, reason string) (bool, error) {
	if DB == nil {
		return false, ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	entry := domain.BlockedIP{IP: ip, Reason: reason}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip"}},
		DoNothing: true,
	}).Create(&entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteBlockedIP removes a block entry; deleting an absent address is a no-op.
func DeleteBlockedIP(ctx context.Context, ip string) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Where("ip = ?", ip).Delete(&domain.BlockedIP{}).Error
}
