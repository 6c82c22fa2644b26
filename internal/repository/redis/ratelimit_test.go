package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = 29000000

// limiterAt returns a limiter whose clock sits 15s into testBucket, so a
// quarter of the previous minute has slid out of the window.
func limiterAt(t *testing.T, limit int) (*BookingLimiter, redismock.ClientMock) {
	t.Helper()

	db, mock := redismock.NewClientMock()
	l := NewBookingLimiter(db, limit, time.Minute)
	at := time.UnixMilli(testBucket*time.Minute.Milliseconds() + 15_000)
	l.now = func() time.Time { return at }
	return l, mock
}

func expectWindow(mock redismock.ClientMock, caller string, cur int64, prev string) {
	curKey := KeyRateLimit("bookings", caller, testBucket)
	prevKey := KeyRateLimit("bookings", caller, testBucket-1)

	mock.ExpectTxPipeline()
	mock.ExpectIncr(curKey).SetVal(cur)
	mock.ExpectPExpire(curKey, 2*time.Minute).SetVal(true)
	if prev == "" {
		mock.ExpectGet(prevKey).RedisNil()
	} else {
		mock.ExpectGet(prevKey).SetVal(prev)
	}
	mock.ExpectTxPipelineExec()
}

func TestBookingLimiter_WeighsPreviousBucket(t *testing.T) {
	l, mock := limiterAt(t, 5)

	// 2 now + 4 earlier weighted by 0.75 = 5: still within the limit.
	expectWindow(mock, "ip:1.2.3.4", 2, "4")
	allowed, current, retry, err := l.Allow(context.Background(), "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(5), current)
	assert.Zero(t, retry)

	expectWindow(mock, "ip:1.2.3.4", 3, "4")
	allowed, current, retry, err = l.Allow(context.Background(), "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(6), current)
	assert.Equal(t, 45*time.Second, retry)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingLimiter_EmptyPreviousBucket(t *testing.T) {
	l, mock := limiterAt(t, 1)

	expectWindow(mock, "ip:5.6.7.8", 1, "")
	allowed, current, _, err := l.Allow(context.Background(), "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), current)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingLimiter_DisabledSkipsRedis(t *testing.T) {
	l, mock := limiterAt(t, 0)

	allowed, _, _, err := l.Allow(context.Background(), "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingLimiter_PropagatesErrors(t *testing.T) {
	l, mock := limiterAt(t, 5)
	curKey := KeyRateLimit("bookings", "ip:1.2.3.4", testBucket)

	mock.ExpectTxPipeline()
	mock.ExpectIncr(curKey).SetErr(errors.New("READONLY You can't write against a read only replica"))

	_, _, _, err := l.Allow(context.Background(), "ip:1.2.3.4")
	assert.Error(t, err)
}
