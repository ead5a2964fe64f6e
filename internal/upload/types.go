package upload

import (
	"context"
	"encoding/hex"
	"hash"
	"sync"
	"time"

	"github.com/lgulliver/lodestone-upload/internal/metrics"
	"github.com/lgulliver/lodestone-upload/internal/storage"
	"github.com/lgulliver/lodestone-upload/pkg/config"
	"github.com/lgulliver/lodestone-upload/pkg/types"
)

// Session is one in-progress upload. Everything below mu is only read or
// written while holding mu.
type Session struct {
	Token     string
	Filename  string
	StagePath string
	StartedAt time.Time

	mu             sync.Mutex
	status         types.UploadStatus
	expectedOffset int64
	digest         hash.Hash
	lastUpdate     time.Time
	closedAt       time.Time
	reason         string
	finalDigest    string
	storagePath    string
}

// Snapshot returns a copy of the session's current state
func (s *Session) Snapshot() *types.UploadSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *types.UploadSnapshot {
	snapshot := &types.UploadSnapshot{
		Token:          s.Token,
		Filename:       s.Filename,
		Status:         s.status,
		ExpectedOffset: s.expectedOffset,
		Digest:         s.finalDigest,
		StoragePath:    s.storagePath,
		Reason:         s.reason,
		StartedAt:      s.StartedAt,
		LastUpdate:     s.lastUpdate,
	}
	return snapshot
}

func (s *Session) currentDigest() string {
	return hex.EncodeToString(s.digest.Sum(nil))
}

// Ledger records sessions that reached a terminal state
type Ledger interface {
	RecordUpload(ctx context.Context, record *types.UploadRecord) error
}

// StatusCache keeps snapshots of retired sessions after they leave the store
type StatusCache interface {
	PutSnapshot(ctx context.Context, snapshot *types.UploadSnapshot) error
	GetSnapshot(ctx context.Context, token string) (*types.UploadSnapshot, error)
}

// Manager drives upload sessions from start to finalize
type Manager struct {
	store    *Store
	staging  storage.AppendStorage
	target   storage.BlobStorage
	config   *config.UploadConfig
	ledger   Ledger
	statuses StatusCache
	metrics  *metrics.Metrics
}

// Option configures optional Manager collaborators
type Option func(*Manager)

// WithLedger records terminal sessions in the given ledger
func WithLedger(ledger Ledger) Option {
	return func(m *Manager) {
		m.ledger = ledger
	}
}

// WithStatusCache keeps retired session snapshots for status queries
func WithStatusCache(cache StatusCache) Option {
	return func(m *Manager) {
		m.statuses = cache
	}
}

// WithMetrics reports session activity to Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}
