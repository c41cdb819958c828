package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentdesk/internal/domain"
	"rentdesk/internal/models"
)

type createBookingRequest struct {
	ResourceID int64     `json:"resource_id"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type depositRequest struct {
	Amount models.Money `json:"amount"`
	Reason string       `json:"reason"`
}

type paymentRequest struct {
	PaymentRef string `json:"payment_ref"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

type reviewRequest struct {
	Rating  int               `json:"rating"`
	Comment string            `json:"comment"`
	Type    models.ReviewType `json:"type"`
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, actorID int64) {
	var body createBookingRequest
	if !decodeBody(w, r, &body) {
		return
	}

	booking, err := s.bookings.CreateBooking(r.Context(), domain.CreateBookingInput{
		ResourceID: body.ResourceID,
		RenterID:   actorID,
		StartAt:    body.StartAt,
		EndAt:      body.EndAt,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.bookings.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request, actorID int64) {
	var body domain.ApproveInput
	if !decodeBody(w, r, &body) {
		return
	}
	booking, err := s.bookings.ApproveBooking(r.Context(), r.PathValue("id"), actorID, body)
	s.writeBooking(w, r, booking, err)
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request, actorID int64) {
	var body rejectRequest
	if !decodeBody(w, r, &body) {
		return
	}
	booking, err := s.bookings.RejectBooking(r.Context(), r.PathValue("id"), actorID, body.Reason)
	s.writeBooking(w, r, booking, err)
}

func (s *HTTPServer) handleRequestDeposit(w http.ResponseWriter, r *http.Request, actorID int64) {
	var body depositRequest
	if !decodeBody(w, r, &body) {
		return
	}
	booking, err := s.bookings.RequestDeposit(r.Context(), r.PathValue("id"), actorID, body.Amount, body.Reason)
	s.writeBooking(w, r, booking, err)
}

func (s *HTTPServer) handlePayDeposit(w http.ResponseWriter, r *http.Request, actorID int64) {
	var body paymentRequest
	if !decodeBody(w, r, &body) {
		return
	}
	booking, err := s.bookings.PayDeposit(r.Context(), r.PathValue("id"), actorID, body.PaymentRef)
	s.writeBooking(w, r, booking, err)
}

func (s *HTTPServer) handleConfirmPayment(w http.ResponseWriter, r *http.Request, actorID int64) {
	var body paymentRequest
	if !decodeBody(w, r, &body) {
		return
	}
	booking, err := s.bookings.ConfirmPayment(r.Context(), r.PathValue("id"), actorID, body.PaymentRef)
	s.writeBooking(w, r, booking, err)
}

func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request, actorID int64) {
	booking, err := s.bookings.CompleteBooking(r.Context(), r.PathValue("id"), actorID)
	s.writeBooking(w, r, booking, err)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, actorID int64) {
	booking, err := s.bookings.CancelBooking(r.Context(), r.PathValue("id"), actorID)
	s.writeBooking(w, r, booking, err)
}

func (s *HTTPServer) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.reviews.GetBookingReviews(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (s *HTTPServer) handleCreateReview(w http.ResponseWriter, r *http.Request, actorID int64) {
	var body reviewRequest
	if !decodeBody(w, r, &body) {
		return
	}
	review, err := s.reviews.CreateReview(r.Context(), domain.CreateReviewInput{
		BookingID: r.PathValue("id"),
		ActorID:   actorID,
		Rating:    body.Rating,
		Comment:   body.Comment,
		Type:      body.Type,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.resources.ListResources(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func (s *HTTPServer) handleGetResource(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := pathID(w, r)
	if !ok {
		return
	}
	resource, err := s.resources.GetResource(r.Context(), resourceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (s *HTTPServer) handleSetAvailability(w http.ResponseWriter, r *http.Request, actorID int64) {
	resourceID, ok := pathID(w, r)
	if !ok {
		return
	}
	var body availabilityRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Available == nil {
		writeError(w, http.StatusBadRequest, "available is required")
		return
	}
	resource, err := s.resources.SetAvailability(r.Context(), resourceID, actorID, *body.Available)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (s *HTTPServer) handleRenterBookings(w http.ResponseWriter, r *http.Request) {
	renterID, ok := pathID(w, r)
	if !ok {
		return
	}
	bookings, err := s.bookings.GetRenterBookings(r.Context(), renterID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleResourceBookings(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := queryInterval(w, r, "from", "to")
	if !ok {
		return
	}
	bookings, err := s.bookings.GetResourceBookings(r.Context(), resourceID, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := pathID(w, r)
	if !ok {
		return
	}
	start, end, ok := queryInterval(w, r, "start", "end")
	if !ok {
		return
	}
	conflict, err := s.bookings.HasConflict(r.Context(), resourceID, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflict": conflict})
}

func (s *HTTPServer) writeBooking(w http.ResponseWriter, r *http.Request, booking *models.Booking, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// writeServiceError maps the domain error taxonomy to HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyReviewed),
		errors.Is(err, domain.ErrResourceUnavailable),
		errors.Is(err, domain.ErrUnsupported):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaymentNotConfirmed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrResourceBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads an optional JSON body. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInterval(w http.ResponseWriter, r *http.Request, fromKey, toKey string) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get(fromKey)))
	if err != nil {
		writeError(w, http.StatusBadRequest, fromKey+" must be an RFC3339 timestamp")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get(toKey)))
	if err != nil {
		writeError(w, http.StatusBadRequest, toKey+" must be an RFC3339 timestamp")
		return time.Time{}, time.Time{}, false
	}
	return from.UTC(), to.UTC(), true
}
