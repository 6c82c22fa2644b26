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

func TestKeys(t *testing.T) {
	assert.Equal(t, "classbook:v1:offering:42", KeyOffering(42))
	assert.Equal(t, "classbook:v1:rl:bookings:ip:1.2.3.4:29000000", KeyRateLimit("bookings", "ip:1.2.3.4", 29000000))
	assert.Equal(t, "classbook:v1:idem:bookings:7:abc", KeyIdemBooking(7, "abc"))
	assert.Equal(t, "classbook:v1:offerings:changed", ChannelOfferingsChanged())
}

func TestIdempotencyStore_Flow(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(db, time.Hour)
	key := KeyIdemBooking(1, "k1")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(true)
	mock.ExpectGet(key).SetVal("LOCK")
	mock.ExpectSet(key, `RES:{"booking_id":"b"}`, time.Hour).SetVal("OK")
	mock.ExpectGet(key).SetVal(`RES:{"booking_id":"b"}`)

	_, ok, err := store.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := store.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)

	inProgress, err := store.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, inProgress)

	require.NoError(t, store.SaveResult(ctx, key, `{"booking_id":"b"}`))

	payload, ok, err := store.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"booking_id":"b"}`, payload)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_LockedKeyHasNoResult(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(db, time.Hour)
	key := KeyIdemBooking(1, "k2")

	mock.ExpectGet(key).SetVal("LOCK")
	mock.ExpectDel(key).SetVal(1)

	_, ok, err := store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Release(context.Background(), key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_PropagatesErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(db, time.Hour)
	key := KeyIdemBooking(1, "k3")

	mock.ExpectGet(key).SetErr(errors.New("conn reset"))

	_, _, err := store.GetResult(context.Background(), key)
	assert.EqualError(t, err, "conn reset")
}
