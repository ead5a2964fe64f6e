package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lgulliver/lodestone-upload/internal/storage"
	"github.com/lgulliver/lodestone-upload/pkg/config"
	"github.com/lgulliver/lodestone-upload/pkg/types"
	"github.com/lgulliver/lodestone-upload/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Close reasons recorded on terminal sessions
const (
	ReasonFinalized      = "finalized"
	ReasonIncomplete     = "incomplete"
	ReasonDigestMismatch = "sha256 mismatch"
	ReasonCancelled      = "cancelled"
	ReasonIdle           = "idle timeout"
)

const commitContentType = "application/octet-stream"

// NewManager creates a session manager that stages chunks in staging and
// commits finalized uploads to target.
func NewManager(staging storage.AppendStorage, target storage.BlobStorage, cfg *config.UploadConfig, opts ...Option) *Manager {
	m := &Manager{
		store:   NewStore(cfg.MaxSessions),
		staging: staging,
		target:  target,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a new session for filename
func (m *Manager) Start(ctx context.Context, filename string) (*types.UploadSnapshot, error) {
	name := utils.SanitizeFilename(filename)
	if name == "" {
		return nil, ErrInvalidFilename
	}

	session, err := m.store.Create(name)
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			m.metrics.Rejected()
			log.Warn().Int("sessions", m.store.Len()).Msg("Rejected upload start, session store is full")
		}
		return nil, err
	}

	m.metrics.Started()
	log.Info().
		Str("upload_token", session.Token).
		Str("filename", name).
		Msg("Started upload session")

	return session.Snapshot(), nil
}

// Continue appends data at offset and returns the next expected offset. A
// *ConflictError carries the offset the client must resume from.
func (m *Manager) Continue(ctx context.Context, token string, offset int64, data []byte) (int64, error) {
	session, err := m.store.Get(token)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	next, err := session.tryAppend(ctx, m.staging, offset, data)

	var conflict *ConflictError
	var ioErr *IOError
	switch {
	case err == nil:
		m.metrics.Accepted(len(data), time.Since(start).Seconds())
		log.Debug().
			Str("upload_token", token).
			Int64("offset", offset).
			Int("chunk_size", len(data)).
			Int64("expected_offset", next).
			Msg("Accepted chunk")
	case errors.As(err, &conflict):
		m.metrics.Conflict()
		log.Debug().
			Str("upload_token", token).
			Int64("offset", offset).
			Int64("expected_offset", conflict.Expected).
			Msg("Rejected chunk at wrong offset")
	case errors.As(err, &ioErr):
		m.metrics.StorageFailure(ioErr.Op)
		log.Error().
			Err(ioErr.Err).
			Str("upload_token", token).
			Int64("offset", offset).
			Msg("Failed to stage chunk")
	}

	return next, err
}

// Finish verifies the declared size and digest against what was received and
// commits the staged bytes under filename. An empty filename keeps the name
// given at start. Size and digest mismatches abort the session; a commit
// failure leaves it OPEN so finish can be retried.
func (m *Manager) Finish(ctx context.Context, token, filename, digest string, size int64) (*types.UploadSnapshot, error) {
	session, err := m.store.Get(token)
	if err != nil {
		return nil, err
	}

	snapshot, err := m.finish(ctx, session, filename, digest, size)
	if snapshot != nil && snapshot.Status.IsTerminal() {
		m.retire(ctx, snapshot)
	}
	return snapshot, err
}

func (m *Manager) finish(ctx context.Context, s *Session, filename, digest string, size int64) (*types.UploadSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != types.StatusOpen {
		return nil, ErrSessionClosed
	}

	name := s.Filename
	if filename != "" {
		name = utils.SanitizeFilename(filename)
		if name == "" {
			return nil, ErrInvalidFilename
		}
	}

	if size != s.expectedOffset {
		m.abortLocked(ctx, s, ReasonIncomplete, m.config.KeepRejected)
		log.Warn().
			Str("upload_token", s.Token).
			Int64("received", s.expectedOffset).
			Int64("declared", size).
			Msg("Rejected finish, upload incomplete")
		return s.snapshotLocked(), fmt.Errorf("%w: received %d bytes, declared %d", ErrIncompleteUpload, s.expectedOffset, size)
	}

	actual := s.currentDigest()
	if !utils.DigestEqual(actual, digest) {
		m.abortLocked(ctx, s, ReasonDigestMismatch, m.config.KeepRejected)
		log.Warn().
			Str("upload_token", s.Token).
			Str("expected", digest).
			Str("actual", actual).
			Msg("Rejected finish, digest mismatch")
		return s.snapshotLocked(), fmt.Errorf("%w: computed %s", ErrDigestMismatch, actual)
	}

	if err := m.commit(ctx, s, name); err != nil {
		m.metrics.StorageFailure("commit")
		log.Error().Err(err).Str("upload_token", s.Token).Str("path", name).Msg("Failed to commit upload")
		return nil, &IOError{Op: "commit", Err: err}
	}

	if err := m.staging.Delete(ctx, s.StagePath); err != nil {
		log.Warn().Err(err).Str("upload_token", s.Token).Msg("Failed to release staged bytes")
	}

	now := time.Now()
	s.status = types.StatusFinalized
	s.reason = ReasonFinalized
	s.finalDigest = actual
	s.storagePath = name
	s.lastUpdate = now
	s.closedAt = now

	log.Info().
		Str("upload_token", s.Token).
		Str("path", name).
		Str("sha256", actual).
		Int64("size", size).
		Str("size_human", utils.FormatBytes(size)).
		Msg("Finalized upload")

	return s.snapshotLocked(), nil
}

// commit copies the staged bytes to the commit target and checks the stored
// length against the bytes accepted
func (m *Manager) commit(ctx context.Context, s *Session, name string) error {
	var content io.Reader = bytes.NewReader(nil)
	if s.expectedOffset > 0 {
		reader, err := m.staging.Retrieve(ctx, s.StagePath)
		if err != nil {
			return fmt.Errorf("failed to open staged bytes: %w", err)
		}
		defer reader.Close()
		content = io.LimitReader(reader, s.expectedOffset)
	}

	if err := m.target.Store(ctx, name, content, commitContentType); err != nil {
		return err
	}

	committed, err := m.target.GetSize(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to verify committed object: %w", err)
	}
	if committed != s.expectedOffset {
		return fmt.Errorf("committed object holds %d bytes, expected %d", committed, s.expectedOffset)
	}
	return nil
}

// Cancel aborts an OPEN session and releases its staged bytes
func (m *Manager) Cancel(ctx context.Context, token string) (*types.UploadSnapshot, error) {
	session, err := m.store.Get(token)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	if session.status != types.StatusOpen {
		session.mu.Unlock()
		return nil, ErrSessionClosed
	}
	m.abortLocked(ctx, session, ReasonCancelled, false)
	snapshot := session.snapshotLocked()
	session.mu.Unlock()

	log.Info().Str("upload_token", token).Msg("Cancelled upload session")
	m.retire(ctx, snapshot)
	return snapshot, nil
}

// Status reports a live session, falling back to the status cache for
// sessions that were already purged from the store.
func (m *Manager) Status(ctx context.Context, token string) (*types.UploadSnapshot, error) {
	session, err := m.store.Get(token)
	if err == nil {
		return session.Snapshot(), nil
	}

	if m.statuses != nil {
		snapshot, cacheErr := m.statuses.GetSnapshot(ctx, token)
		if cacheErr == nil {
			return snapshot, nil
		}
		log.Debug().Err(cacheErr).Str("upload_token", token).Msg("Status cache lookup missed")
	}

	return nil, ErrSessionNotFound
}

// Sessions returns the number of sessions held in memory
func (m *Manager) Sessions() int {
	return m.store.Len()
}

// abortLocked moves s to ABORTED. Staged bytes are deleted unless keep is set.
func (m *Manager) abortLocked(ctx context.Context, s *Session, reason string, keep bool) {
	now := time.Now()
	s.status = types.StatusAborted
	s.reason = reason
	s.lastUpdate = now
	s.closedAt = now

	if keep || s.expectedOffset == 0 {
		return
	}
	if err := m.staging.Delete(ctx, s.StagePath); err != nil {
		log.Warn().Err(err).Str("upload_token", s.Token).Msg("Failed to release staged bytes")
	}
}

// retire publishes a terminal snapshot to the metrics, the ledger and the
// status cache. Failures here never change the outcome of the request.
func (m *Manager) retire(ctx context.Context, snapshot *types.UploadSnapshot) {
	m.metrics.Closed(string(snapshot.Status), snapshot.Reason)

	if m.ledger != nil {
		record := &types.UploadRecord{
			Token:       snapshot.Token,
			Filename:    snapshot.Filename,
			Status:      snapshot.Status,
			Size:        snapshot.ExpectedOffset,
			SHA256:      snapshot.Digest,
			StoragePath: snapshot.StoragePath,
			Reason:      snapshot.Reason,
			StartedAt:   snapshot.StartedAt,
			CompletedAt: snapshot.LastUpdate,
		}
		if m.keptRejected(snapshot) {
			record.Metadata = types.JSONMap{"staged_path": stagePath(snapshot.Token)}
		}
		if err := m.ledger.RecordUpload(ctx, record); err != nil {
			log.Error().Err(err).Str("upload_token", snapshot.Token).Msg("Failed to record upload")
		}
	}

	if m.statuses != nil {
		if err := m.statuses.PutSnapshot(ctx, snapshot); err != nil {
			log.Error().Err(err).Str("upload_token", snapshot.Token).Msg("Failed to cache upload status")
		}
	}
}

func (m *Manager) keptRejected(snapshot *types.UploadSnapshot) bool {
	if !m.config.KeepRejected || snapshot.Status != types.StatusAborted || snapshot.ExpectedOffset == 0 {
		return false
	}
	return snapshot.Reason == ReasonIncomplete || snapshot.Reason == ReasonDigestMismatch
}
