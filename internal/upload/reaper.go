package upload

import (
	"context"
	"time"

	"github.com/lgulliver/lodestone-upload/pkg/types"
	"github.com/rs/zerolog/log"
)

// RunReaper aborts idle sessions and purges retired ones every ReapInterval
// until ctx is cancelled. A non-positive interval disables reaping.
func (m *Manager) RunReaper(ctx context.Context) {
	if m.config.ReapInterval <= 0 {
		log.Warn().Msg("Upload reaper disabled, reap interval is not positive")
		return
	}

	ticker := time.NewTicker(m.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Reap(ctx, now)
		}
	}
}

// Reap runs one sweep as of now. OPEN sessions idle longer than IdleTimeout
// are aborted and their staged bytes released; terminal sessions closed
// longer than RetainTerminal ago are removed from the store. Sessions busy
// with a request are skipped until the next sweep.
func (m *Manager) Reap(ctx context.Context, now time.Time) (aborted, purged int) {
	var retired []*types.UploadSnapshot

	for _, session := range m.store.All() {
		if !session.mu.TryLock() {
			continue
		}

		switch {
		case session.status == types.StatusOpen:
			if m.config.IdleTimeout > 0 && now.Sub(session.lastUpdate) > m.config.IdleTimeout {
				m.abortLocked(ctx, session, ReasonIdle, false)
				retired = append(retired, session.snapshotLocked())
				aborted++
			}
		case now.Sub(session.closedAt) >= m.config.RetainTerminal:
			m.store.Remove(session.Token)
			purged++
		}

		session.mu.Unlock()
	}

	for _, snapshot := range retired {
		log.Info().Str("upload_token", snapshot.Token).Msg("Aborted idle upload session")
		m.retire(ctx, snapshot)
	}

	if aborted > 0 || purged > 0 {
		log.Info().
			Int("aborted", aborted).
			Int("purged", purged).
			Int("remaining", m.store.Len()).
			Msg("Reaped upload sessions")
	}

	return aborted, purged
}
