package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/repository/memory"
	"github.com/kirinyoku/classbook/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	store  *memory.Store
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memory.New(100 * time.Millisecond)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svcs := service.NewServices(store, nil, nil, nil, logger, service.Config{})

	return &testAPI{store: store, router: NewRouter(svcs, nil, logger)}
}

func (a *testAPI) offering(capacity int) int64 {
	return a.store.AddOffering(domain.Offering{Capacity: capacity, StartsAt: time.Now().Add(24 * time.Hour)})
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestBookingLifecycle(t *testing.T) {
	a := newTestAPI(t)
	oid := a.offering(1)
	base := "/offerings/" + itoa(oid)

	w := a.do(t, http.MethodGet, base+"/can-book?participant_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.DecisionAvailable, decode[domain.BookingDecision](t, w).Code)

	w = a.do(t, http.MethodPost, base+"/bookings", CreateBookingRequest{ParticipantID: 1, PaymentStatus: "completed"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bookingID := decode[CreateBookingResponse](t, w).BookingID

	w = a.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[domain.Offering](t, w).Occupancy)

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	w = a.do(t, http.MethodGet, base, nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = a.do(t, http.MethodPost, base+"/bookings", CreateBookingRequest{ParticipantID: 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already booked", decode[ErrorResponse](t, w).Error)

	w = a.do(t, http.MethodPost, base+"/bookings", CreateBookingRequest{ParticipantID: 2, PaymentStatus: "completed"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "class full", decode[ErrorResponse](t, w).Error)

	w = a.do(t, http.MethodGet, base+"/can-book?participant_id=2", nil)
	assert.Equal(t, domain.DecisionFull, decode[domain.BookingDecision](t, w).Code)

	w = a.do(t, http.MethodPost, "/bookings/"+bookingID+"/cancel", CancelBookingRequest{ParticipantID: 2})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/bookings/"+bookingID+"/cancel", CancelBookingRequest{ParticipantID: 1})
	require.Equal(t, http.StatusOK, w.Code)
	b := decode[domain.Booking](t, w)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	assert.Equal(t, domain.PaymentRefunded, b.Payment)

	w = a.do(t, http.MethodGet, "/participants/1/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Booking](t, w), 1)

	w = a.do(t, http.MethodGet, "/admin/offerings/"+itoa(oid)+"/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recs := decode[[]domain.AuditRecord](t, w)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.AuditDecrement, recs[0].Action)
	assert.Equal(t, domain.AuditIncrement, recs[1].Action)
}

func TestUpdatePayment_InvalidTransitionIs422(t *testing.T) {
	a := newTestAPI(t)
	oid := a.offering(2)

	w := a.do(t, http.MethodPost, "/offerings/"+itoa(oid)+"/bookings", CreateBookingRequest{ParticipantID: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	bookingID := decode[CreateBookingResponse](t, w).BookingID

	w = a.do(t, http.MethodPost, "/bookings/"+bookingID+"/payment", UpdatePaymentRequest{Status: "refunded"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "confirmed", resp.Details["booking_status"])
	assert.Equal(t, "pending", resp.Details["from"])
	assert.Equal(t, "refunded", resp.Details["to"])

	w = a.do(t, http.MethodPost, "/bookings/"+bookingID+"/payment", UpdatePaymentRequest{Status: "completed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PaymentCompleted, decode[domain.Booking](t, w).Payment)
}

func TestCreate_BusyIs503WithRetryAfter(t *testing.T) {
	a := newTestAPI(t)
	oid := a.offering(2)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = a.store.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.Offerings().GetForUpdate(ctx, oid)
			assert.NoError(t, err)
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	w := a.do(t, http.MethodPost, "/offerings/"+itoa(oid)+"/bookings", CreateBookingRequest{ParticipantID: 1})
	close(release)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestAdminReconcile(t *testing.T) {
	a := newTestAPI(t)
	oid := a.offering(5)
	require.NoError(t, a.store.Offerings().SetOccupancy(context.Background(), oid, 3))

	w := a.do(t, http.MethodPost, "/admin/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[ReconcileResponse](t, w)
	assert.Equal(t, 1, resp.Offerings)
	assert.Equal(t, 1, resp.Fixed)
	assert.Zero(t, resp.Failed)

	w = a.do(t, http.MethodPost, "/admin/offerings/"+itoa(oid)+"/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[domain.SyncResult](t, w).WasFixed)

	w = a.do(t, http.MethodPost, "/admin/offerings/999/sync", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBadRequests(t *testing.T) {
	a := newTestAPI(t)
	oid := a.offering(1)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"non numeric offering", http.MethodGet, "/offerings/abc", nil},
		{"missing participant", http.MethodGet, "/offerings/" + itoa(oid) + "/can-book", nil},
		{"invalid booking id", http.MethodGet, "/bookings/not-a-uuid", nil},
		{"missing body field", http.MethodPost, "/offerings/" + itoa(oid) + "/bookings", map[string]any{}},
		{"refunded at creation", http.MethodPost, "/offerings/" + itoa(oid) + "/bookings", CreateBookingRequest{ParticipantID: 1, PaymentStatus: "refunded"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestNotFound(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/offerings/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/offerings/42/bookings", CreateBookingRequest{ParticipantID: 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/bookings/3f1c2b8e-4d5a-4e6f-9a7b-1c2d3e4f5a6b", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodGet, "/healthz", nil)

	w := a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "classbook_http_requests_total")
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestGetOffering_ETagFollowsOccupancy(t *testing.T) {
	a := newTestAPI(t)
	oid := a.offering(3)
	path := "/offerings/" + itoa(oid)

	w := a.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	before := w.Header().Get("ETag")
	assert.Equal(t, "public, max-age=5", w.Header().Get("Cache-Control"))

	w = a.do(t, http.MethodGet, path, nil, "If-None-Match", `"unrelated", `+before)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())

	w = a.do(t, http.MethodPost, path+"/bookings", CreateBookingRequest{ParticipantID: 9, PaymentStatus: "completed"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, path, nil, "If-None-Match", before)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, before, w.Header().Get("ETag"))
	assert.Equal(t, 1, decode[domain.Offering](t, w).Occupancy)
}

func TestETagMatches(t *testing.T) {
	tag := `W/"o1-3-1-0"`

	assert.True(t, etagMatches(tag, tag))
	assert.True(t, etagMatches(`"o1-3-1-0"`, tag))
	assert.True(t, etagMatches(`"a", W/"o1-3-1-0"`, tag))
	assert.True(t, etagMatches("*", tag))
	assert.False(t, etagMatches("", tag))
	assert.False(t, etagMatches(`W/"o1-3-2-0"`, tag))
}
