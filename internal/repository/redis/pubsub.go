package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OfferingChange tells other instances that an offering's committed
// occupancy moved. It carries no counts: receivers drop their cached copy and
// reread the row.
type OfferingChange struct {
	OfferingID int64     `json:"offering_id"`
	Origin     string    `json:"origin"`
	At         time.Time `json:"at"`
}

// OfferingsPubSub is the change feed between instances. Each instance tags
// what it publishes with its own origin and skips those messages when they
// come back, since the publishing instance already evicted its cache.
type OfferingsPubSub struct {
	rdb     *redis.Client
	channel string
	origin  string
	now     func() time.Time
}

func NewOfferingsPubSub(rdb *redis.Client) *OfferingsPubSub {
	return &OfferingsPubSub{
		rdb:     rdb,
		channel: ChannelOfferingsChanged(),
		origin:  uuid.NewString(),
		now:     time.Now,
	}
}

func (p *OfferingsPubSub) PublishOfferingChanged(ctx context.Context, offeringID int64) error {
	b, err := json.Marshal(OfferingChange{
		OfferingID: offeringID,
		Origin:     p.origin,
		At:         p.now().UTC(),
	})
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, string(b)).Err()
}

// Subscribe calls onChange for every change published by another instance
// until ctx is done. Malformed messages are skipped.
func (p *OfferingsPubSub) Subscribe(ctx context.Context, onChange func(ctx context.Context, ch OfferingChange)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	msgs := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}

			if ch, ok := p.decode(m.Payload); ok {
				onChange(ctx, ch)
			}
		}
	}
}

// decode reports false for payloads that are malformed, name no offering or
// were published by this instance.
func (p *OfferingsPubSub) decode(payload string) (OfferingChange, bool) {
	var ch OfferingChange
	if err := json.Unmarshal([]byte(payload), &ch); err != nil {
		return OfferingChange{}, false
	}

	if ch.OfferingID <= 0 || ch.Origin == p.origin {
		return OfferingChange{}, false
	}

	return ch, true
}
