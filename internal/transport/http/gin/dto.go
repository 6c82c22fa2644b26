package httpgin

type CreateBookingRequest struct {
	ParticipantID int64 `json:"participant_id" binding:"required,gt=0"`
	// PaymentStatus is pending unless the payment was taken up front.
	PaymentStatus string `json:"payment_status" binding:"omitempty,oneof=pending completed failed"`
}

type CreateBookingResponse struct {
	BookingID string `json:"booking_id"`
}

type CancelBookingRequest struct {
	ParticipantID int64 `json:"participant_id" binding:"required,gt=0"`
}

type UpdatePaymentRequest struct {
	Status string `json:"status" binding:"required"`
}

type ReconcileResponse struct {
	Offerings int `json:"offerings"`
	Fixed     int `json:"fixed"`
	Failed    int `json:"failed"`
	Results   any `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Details carries state the caller needs to decide on a retry or a
	// compensating action, for example the rejected transition.
	Details map[string]any `json:"details,omitempty"`
}
