package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const scopeBookings = "bookings"

// BookingLimiter caps booking creations per caller over a sliding window. It
// keeps one counter per fixed bucket and weighs the previous bucket by how
// much of it still overlaps the window, so a caller cannot double its quota
// by straddling a bucket boundary.
//
// The caller's attempt is counted even when it is refused.
type BookingLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewBookingLimiter(rdb *redis.Client, limit int, window time.Duration) *BookingLimiter {
	if window <= 0 {
		window = time.Minute
	}

	return &BookingLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records one booking attempt by caller and reports whether it fits the
// limit. A non-positive limit allows everything without touching redis.
//
// Returns:
//   - allowed: whether the attempt may proceed.
//   - current: the weighted attempt count including this one.
//   - retryAfter: for refused attempts, how long until the current bucket ends.
func (l *BookingLimiter) Allow(ctx context.Context, caller string) (allowed bool, current int64, retryAfter time.Duration, err error) {
	if l.limit <= 0 {
		return true, 0, 0, nil
	}

	now := l.now()
	bucket := now.UnixMilli() / l.window.Milliseconds()
	elapsed := time.Duration(now.UnixMilli()%l.window.Milliseconds()) * time.Millisecond

	curKey := KeyRateLimit(scopeBookings, caller, bucket)
	prevKey := KeyRateLimit(scopeBookings, caller, bucket-1)

	var (
		curCmd  *redis.IntCmd
		prevCmd *redis.StringCmd
	)

	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		curCmd = pipe.Incr(ctx, curKey)
		pipe.PExpire(ctx, curKey, 2*l.window)
		prevCmd = pipe.Get(ctx, prevKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, 0, err
	}

	cur := curCmd.Val()
	prev, err := prevCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, 0, err
	}

	overlap := float64(l.window-elapsed) / float64(l.window)
	current = cur + int64(float64(prev)*overlap)

	if current > int64(l.limit) {
		return false, current, l.window - elapsed, nil
	}

	return true, current, 0, nil
}
