package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/lgulliver/lodestone-upload/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRecordNotFound is returned when no ledger row exists for a token
var ErrRecordNotFound = errors.New("upload record not found")

// UploadLedger persists one audit row per upload that reached a terminal state
type UploadLedger struct {
	db *Database
}

// NewUploadLedger creates a ledger on top of an open database
func NewUploadLedger(db *Database) *UploadLedger {
	return &UploadLedger{db: db}
}

// RecordUpload inserts the record, replacing any earlier row for the same token
func (l *UploadLedger) RecordUpload(ctx context.Context, record *types.UploadRecord) error {
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "size", "sha256", "storage_path", "reason", "metadata", "completed_at", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}

// GetUpload returns the ledger row for a token
func (l *UploadLedger) GetUpload(ctx context.Context, token string) (*types.UploadRecord, error) {
	var record types.UploadRecord
	if err := l.db.WithContext(ctx).Where("token = ?", token).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to find upload record: %w", err)
	}
	return &record, nil
}

// ListUploads returns ledger rows matching the filter, newest first, and the total count
func (l *UploadLedger) ListUploads(ctx context.Context, filter *types.UploadRecordFilter) ([]*types.UploadRecord, int64, error) {
	query := l.db.WithContext(ctx).Model(&types.UploadRecord{})

	if filter != nil {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.Filename != "" {
			query = query.Where("filename LIKE ?", "%"+filter.Filename+"%")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count upload records: %w", err)
	}

	if filter != nil {
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	var records []*types.UploadRecord
	if err := query.Order("completed_at DESC").Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list upload records: %w", err)
	}

	return records, total, nil
}
