package service

import (
	"log/slog"

	"github.com/kirinyoku/classbook/internal/repository"
	redisrepo "github.com/kirinyoku/classbook/internal/repository/redis"
	"github.com/kirinyoku/classbook/internal/service/booking"
	"github.com/kirinyoku/classbook/internal/service/query"
	"github.com/kirinyoku/classbook/internal/service/reconcile"
)

type Services struct {
	Booking   *booking.Service
	Query     *query.Service
	Reconcile *reconcile.Service
}

type Config struct {
	Booking booking.Config
	Query   query.Config
}

// NewServices wires the services over one store. cache, pubsub and limiter
// are nil when redis is not configured.
func NewServices(
	store repository.Store,
	cache *redisrepo.OfferingCache,
	pubsub *redisrepo.OfferingsPubSub,
	limiter *redisrepo.BookingLimiter,
	logger *slog.Logger,
	cfg Config,
) *Services {
	// Typed nil pointers must not leak into the interface fields.
	var (
		bookingCache   booking.OfferingCache
		bookingPub     booking.OfferingPublisher
		bookingLimit   booking.Limiter
		reconcileCache reconcile.OfferingCache
		reconcilePub   reconcile.OfferingPublisher
		queryCache     query.OfferingCache
	)

	if cache != nil {
		bookingCache, reconcileCache, queryCache = cache, cache, cache
	}

	if pubsub != nil {
		bookingPub, reconcilePub = pubsub, pubsub
	}

	if limiter != nil {
		bookingLimit = limiter
	}

	return &Services{
		Booking:   booking.New(store, bookingCache, bookingPub, bookingLimit, logger, cfg.Booking),
		Query:     query.New(store, queryCache, cfg.Query),
		Reconcile: reconcile.New(store, reconcileCache, reconcilePub, logger),
	}
}
