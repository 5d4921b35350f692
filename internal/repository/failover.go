package repository

import (
	"context"
	"sync/atomic"
	"time"

	"hotelhub/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverRoomLocker prefers the shared redis locker and degrades to the
// in-process one while redis is unreachable.
type FailoverRoomLocker struct {
	primary   domain.RoomLocker
	fallback  domain.RoomLocker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	retryIn   time.Duration
}

func NewFailoverRoomLocker(primary, fallback domain.RoomLocker, logger *zerolog.Logger) *FailoverRoomLocker {
	return &FailoverRoomLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		retryIn:  time.Minute,
	}
}

func (l *FailoverRoomLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	if l.usePrimary() {
		unlock, err := l.primary.Lock(ctx, roomID)
		if err == nil {
			if l.isDown.CompareAndSwap(true, false) {
				l.logger.Info().Msg("Primary room locker recovered")
			}
			return unlock, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		l.logger.Error().Err(err).Str("room_id", roomID).Msg("Primary room locker failed, falling back to memory")
		l.isDown.Store(true)
		l.lastCheck.Store(time.Now().UnixNano())
	}

	return l.fallback.Lock(ctx, roomID)
}

// usePrimary is true while healthy and, once down, again after retryIn.
func (l *FailoverRoomLocker) usePrimary() bool {
	if !l.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, l.lastCheck.Load())) > l.retryIn
}
