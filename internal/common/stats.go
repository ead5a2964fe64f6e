package common

import (
	"context"
	"fmt"
	"time"

	"github.com/lgulliver/lodestone-upload/pkg/types"
)

// UploadStats summarizes ledger rows by outcome
type UploadStats struct {
	Since          *time.Time                   `json:"since,omitempty"`
	Total          int64                        `json:"total"`
	ByStatus       map[types.UploadStatus]int64 `json:"by_status"`
	ByReason       map[string]int64             `json:"by_reason"`
	FinalizedBytes int64                        `json:"finalized_bytes"`
}

type statsRow struct {
	Status types.UploadStatus
	Reason string
	Count  int64
	Bytes  int64
}

// Stats aggregates uploads completed at or after since. A nil since covers
// the whole ledger.
func (l *UploadLedger) Stats(ctx context.Context, since *time.Time) (*UploadStats, error) {
	query := l.db.WithContext(ctx).Model(&types.UploadRecord{})
	if since != nil {
		query = query.Where("completed_at >= ?", *since)
	}

	var rows []statsRow
	if err := query.
		Select("status, reason, COUNT(*) AS count, COALESCE(SUM(size), 0) AS bytes").
		Group("status, reason").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate upload records: %w", err)
	}

	stats := &UploadStats{
		Since:    since,
		ByStatus: make(map[types.UploadStatus]int64),
		ByReason: make(map[string]int64),
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByStatus[row.Status] += row.Count
		if row.Reason != "" {
			stats.ByReason[row.Reason] += row.Count
		}
		if row.Status == types.StatusFinalized {
			stats.FinalizedBytes += row.Bytes
		}
	}

	return stats, nil
}
