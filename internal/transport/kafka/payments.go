// Package kafkax feeds payment outcomes reported by the payment collaborator
// into the booking ledger.
package kafkax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/service/booking"
	"github.com/segmentio/kafka-go"
)

type PaymentUpdater interface {
	UpdatePaymentStatus(ctx context.Context, bookingID uuid.UUID, to domain.PaymentStatus) (*domain.Booking, error)
}

type Config struct {
	Brokers    []string
	Topic      string
	GroupID    string
	MaxRetries int
	Backoff    time.Duration
}

// PaymentMessage is the payload published by the payment collaborator.
type PaymentMessage struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type PaymentConsumer struct {
	reader   *kafka.Reader
	payments PaymentUpdater
	log      *slog.Logger
	cfg      Config
}

func NewPaymentConsumer(cfg Config, payments PaymentUpdater, logger *slog.Logger) *PaymentConsumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}

	if logger == nil {
		logger = slog.Default()
	}

	var reader *kafka.Reader
	if len(cfg.Brokers) > 0 {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.GroupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			StartOffset:    kafka.FirstOffset,
		})
	}

	return &PaymentConsumer{
		reader:   reader,
		payments: payments,
		log:      logger.With(slog.String("component", "payments-consumer"), slog.String("topic", cfg.Topic)),
		cfg:      cfg,
	}
}

// Run fetches and applies messages until ctx is done. A message is committed
// once it has been applied or rejected for good.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	const op = "kafka.PaymentConsumer.Run"

	if c.reader == nil {
		return fmt.Errorf("%s: no brokers configured", op)
	}

	c.log.Info("consuming payment outcomes")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			c.log.Error("fetch failed", slog.String("error", err.Error()))

			if !sleep(ctx, time.Second) {
				return nil
			}

			continue
		}

		c.Handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Handle applies one message. Malformed payloads and business rejections are
// logged and dropped. Lock contention and other transient failures are
// retried with exponential backoff, up to MaxRetries.
func (c *PaymentConsumer) Handle(ctx context.Context, msg kafka.Message) {
	log := c.log.With(slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))

	var pm PaymentMessage
	if err := json.Unmarshal(msg.Value, &pm); err != nil {
		log.Warn("malformed payment message dropped", slog.String("error", err.Error()))
		return
	}

	bookingID, err := uuid.Parse(pm.BookingID)
	if err != nil {
		log.Warn("payment message with invalid booking id dropped", slog.String("booking_id", pm.BookingID))
		return
	}

	to := domain.PaymentStatus(pm.Status)
	log = log.With(slog.String("booking_id", bookingID.String()), slog.String("status", pm.Status))

	backoff := c.cfg.Backoff
	for attempt := 1; ; attempt++ {
		_, err := c.payments.UpdatePaymentStatus(ctx, bookingID, to)
		if err == nil {
			log.Info("payment status applied")
			return
		}

		if rejected(err) {
			log.Warn("payment update rejected", slog.String("error", err.Error()))
			return
		}

		if attempt > c.cfg.MaxRetries {
			log.Error("payment update gave up", slog.Int("attempts", attempt), slog.String("error", err.Error()))
			return
		}

		log.Debug("payment update retry", slog.Int("attempt", attempt), slog.String("error", err.Error()))

		if !sleep(ctx, backoff) {
			return
		}

		backoff *= 2
	}
}

func (c *PaymentConsumer) Close() error {
	if c.reader == nil {
		return nil
	}

	return c.reader.Close()
}

// rejected reports errors that a retry cannot change.
func rejected(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, booking.ErrInvalidInput),
		errors.Is(err, booking.ErrClassFull):
		return true
	}

	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
