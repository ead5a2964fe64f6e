package upload

import (
	"context"
	"time"

	"github.com/lgulliver/lodestone-upload/internal/storage"
	"github.com/lgulliver/lodestone-upload/pkg/types"
)

// tryAppend accepts data only when offset equals the expected offset. The
// compare, the staged write, the digest update and the offset advance all
// happen under the session lock, so at most one writer can win a given
// offset. It returns the offset the client should send next.
func (s *Session) tryAppend(ctx context.Context, sink storage.AppendStorage, offset int64, data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != types.StatusOpen {
		return s.expectedOffset, ErrSessionClosed
	}
	if offset != s.expectedOffset {
		return s.expectedOffset, &ConflictError{Expected: s.expectedOffset, Got: offset}
	}
	if len(data) == 0 {
		return s.expectedOffset, nil
	}

	if err := sink.Append(ctx, s.StagePath, offset, data); err != nil {
		return s.expectedOffset, &IOError{Op: "append", Err: err}
	}

	// hash.Hash.Write never returns an error
	s.digest.Write(data)
	s.expectedOffset += int64(len(data))
	s.lastUpdate = time.Now()

	return s.expectedOffset, nil
}
