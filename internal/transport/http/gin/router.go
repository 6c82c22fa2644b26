package httpgin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	redisrepo "github.com/kirinyoku/classbook/internal/repository/redis"
	"github.com/kirinyoku/classbook/internal/service"
	"github.com/kirinyoku/classbook/internal/service/booking"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const idempotencyLockTTL = 60 * time.Second

// NewRouter builds the HTTP API. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), MetricsMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/offerings/:id", handleGetOffering(svcs))
	r.GET("/offerings/:id/can-book", handleCanBook(svcs))
	r.POST("/offerings/:id/bookings", handleCreateBooking(svcs, idem))

	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.POST("/bookings/:id/cancel", handleCancelBooking(svcs))
	r.POST("/bookings/:id/payment", handleUpdatePayment(svcs))

	r.GET("/participants/:id/bookings", handleListParticipantBookings(svcs))

	// Admin-API
	admin := r.Group("/admin")
	{
		admin.POST("/bookings/:id/reactivate", handleReactivateBooking(svcs))
		admin.POST("/offerings/:id/sync", handleSyncOffering(svcs))
		admin.GET("/offerings/:id/audit", handleListAudit(svcs))
		admin.POST("/reconcile", handleReconcile(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get offering
// @Param    id  path  int  true  "Offering ID"
// @Success  200  {object}  domain.Offering
// @Failure  404  {object}  ErrorResponse
// @Router   /offerings/{id} [get]
func handleGetOffering(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		offeringID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		o, err := svcs.Query.GetOffering(c.Request.Context(), offeringID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeOffering(c, o)
	}
}

// @Summary  Check whether a participant can book an offering
// @Param    id              path   int  true  "Offering ID"
// @Param    participant_id  query  int  true  "Participant ID"
// @Success  200  {object}  domain.BookingDecision
// @Failure  400  {object}  ErrorResponse
// @Router   /offerings/{id}/can-book [get]
func handleCanBook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		offeringID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		participantID, err := strconv.ParseInt(c.Query("participant_id"), 10, 64)
		if err != nil || participantID <= 0 {
			badRequest(c, "invalid participant_id")
			return
		}
		d, err := svcs.Query.CanBook(c.Request.Context(), participantID, offeringID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, d)
	}
}

// @Summary  Create booking (idempotent)
// @Param    id  path  int  true  "Offering ID"
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} CreateBookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "offering not found"
// @Failure  409 {object} ErrorResponse "already booked / class full / class past / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  503 {object} ErrorResponse "system busy"
// @Router   /offerings/{id}/bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		offeringID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(offeringID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				replay(c, idemKey, payload)
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, idempotencyLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					replay(c, idemKey, payload)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		bookingID, err := svcs.Booking.Create(c.Request.Context(), booking.CreateParams{
			ParticipantID: req.ParticipantID,
			OfferingID:    offeringID,
			Payment:       domain.PaymentStatus(req.PaymentStatus),
			RateLimitKey:  "ip:" + c.ClientIP(),
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := CreateBookingResponse{BookingID: bookingID.String()}

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Get booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Query.GetBooking(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Param    req body  CancelBookingRequest true "payload"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse "not found or not owned"
// @Failure  503 {object} ErrorResponse "system busy"
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CancelBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		b, err := svcs.Booking.Cancel(c.Request.Context(), bookingID, req.ParticipantID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Update payment status
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Param    req body  UpdatePaymentRequest true "payload"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "class full"
// @Failure  422 {object} ErrorResponse "invalid transition"
// @Failure  503 {object} ErrorResponse "system busy"
// @Router   /bookings/{id}/payment [post]
func handleUpdatePayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		b, err := svcs.Booking.UpdatePaymentStatus(
			c.Request.Context(),
			bookingID,
			domain.PaymentStatus(req.Status),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  List participant bookings
// @Param    id  path  int  true  "Participant ID"
// @Success  200 {array} domain.Booking
// @Router   /participants/{id}/bookings [get]
func handleListParticipantBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		participantID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		list, err := svcs.Query.ListParticipantBookings(c.Request.Context(), participantID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Reactivate cancelled booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already booked / not cancelled / class full"
// @Router   /admin/bookings/{id}/reactivate [post]
func handleReactivateBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Reactivate(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Recount one offering
// @Param    id  path  int  true  "Offering ID"
// @Success  200 {object} domain.SyncResult
// @Failure  404 {object} ErrorResponse
// @Failure  503 {object} ErrorResponse "system busy"
// @Router   /admin/offerings/{id}/sync [post]
func handleSyncOffering(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		offeringID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		res, err := svcs.Reconcile.SyncOne(c.Request.Context(), offeringID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  List offering audit records
// @Param    id     path   int  true   "Offering ID"
// @Param    limit  query  int  false  "max records"
// @Success  200 {array} domain.AuditRecord
// @Failure  404 {object} ErrorResponse
// @Router   /admin/offerings/{id}/audit [get]
func handleListAudit(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		offeringID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		limit := parseIntDefault(c.Query("limit"), 0)
		recs, err := svcs.Query.ListAudit(c.Request.Context(), offeringID, limit)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, recs)
	}
}

// @Summary  Recount every offering
// @Success  200 {object} ReconcileResponse
// @Router   /admin/reconcile [post]
func handleReconcile(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svcs.Reconcile.ValidateAll(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		resp := ReconcileResponse{Offerings: len(report), Results: report}
		for _, row := range report {
			switch {
			case row.Error != "":
				resp.Failed++
			case row.WasFixed:
				resp.Fixed++
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// --- Helpers ---

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
