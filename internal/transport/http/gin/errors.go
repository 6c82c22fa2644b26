package httpgin

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/service/booking"
	"github.com/kirinyoku/classbook/internal/service/query"
	"github.com/kirinyoku/classbook/internal/service/reconcile"
)

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	_ = c.Error(err)

	var (
		ite  *domain.InvalidTransitionError
		full *booking.ClassFullError
		rl   *booking.RateLimitedError
	)

	switch {
	// booking ledger
	case errors.As(err, &ite):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: "invalid payment transition",
			Details: map[string]any{
				"booking_status": ite.BookingStatus,
				"from":           ite.From,
				"to":             ite.To,
				"allowed":        domain.AllowedPaymentTransitions(ite.BookingStatus, ite.From),
			},
		})
	case errors.As(err, &full):
		details := map[string]any{
			"offering_id": full.OfferingID,
			"current":     full.Occupancy,
			"max":         full.Capacity,
		}
		if full.BookingID != uuid.Nil {
			details["booking_id"] = full.BookingID.String()
		}
		c.JSON(http.StatusConflict, ErrorResponse{Error: "class full", Details: details})
	case errors.Is(err, booking.ErrClassFull):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "class full"})
	case errors.Is(err, booking.ErrAlreadyBooked):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already booked"})
	case errors.Is(err, booking.ErrClassPast):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "class already started"})
	case errors.Is(err, booking.ErrNotCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking is not cancelled"})
	case errors.Is(err, booking.ErrNotFoundOrAccessDenied):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found or access denied"})
	case errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, query.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	case errors.Is(err, booking.ErrOfferingNotFound),
		errors.Is(err, query.ErrOfferingNotFound),
		errors.Is(err, reconcile.ErrOfferingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "offering not found"})
	case errors.As(err, &rl):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
	case errors.Is(err, booking.ErrSystemBusy),
		errors.Is(err, reconcile.ErrSystemBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "system busy, retry"})
	case errors.Is(err, booking.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
