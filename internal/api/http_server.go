package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"rentdesk/internal/config"
	"rentdesk/internal/domain"
	"rentdesk/internal/logging"
	"rentdesk/internal/metrics"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking engine as a JSON API.
type HTTPServer struct {
	cfg       config.APIConfig
	bookings  domain.BookingService
	reviews   domain.ReviewService
	resources domain.ResourceService
	auth      *HTTPAuth
	server    *http.Server
	logger    *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	bookings domain.BookingService,
	reviews domain.ReviewService,
	resources domain.ResourceService,
	actors domain.ActorRateLimiter,
	logger *zerolog.Logger,
) *HTTPServer {
	l := logging.Component(logger, "http")
	srv := &HTTPServer{
		cfg:       cfg,
		bookings:  bookings,
		reviews:   reviews,
		resources: resources,
		logger:    l,
	}
	srv.auth = NewHTTPAuth(cfg, actors, l)

	mux := http.NewServeMux()
	srv.route(mux, "GET /healthz", "healthz", srv.handleHealthz)

	srv.route(mux, "POST /api/v1/bookings", "create_booking", srv.withActor(srv.handleCreateBooking))
	srv.route(mux, "GET /api/v1/bookings/{id}", "get_booking", srv.handleGetBooking)
	srv.route(mux, "POST /api/v1/bookings/{id}/approve", "approve_booking", srv.withActor(srv.handleApprove))
	srv.route(mux, "POST /api/v1/bookings/{id}/reject", "reject_booking", srv.withActor(srv.handleReject))
	srv.route(mux, "POST /api/v1/bookings/{id}/deposit", "request_deposit", srv.withActor(srv.handleRequestDeposit))
	srv.route(mux, "POST /api/v1/bookings/{id}/deposit/pay", "pay_deposit", srv.withActor(srv.handlePayDeposit))
	srv.route(mux, "POST /api/v1/bookings/{id}/payment", "confirm_payment", srv.withActor(srv.handleConfirmPayment))
	srv.route(mux, "POST /api/v1/bookings/{id}/complete", "complete_booking", srv.withActor(srv.handleComplete))
	srv.route(mux, "POST /api/v1/bookings/{id}/cancel", "cancel_booking", srv.withActor(srv.handleCancel))
	srv.route(mux, "GET /api/v1/bookings/{id}/reviews", "list_reviews", srv.handleListReviews)
	srv.route(mux, "POST /api/v1/bookings/{id}/reviews", "create_review", srv.withActor(srv.handleCreateReview))

	srv.route(mux, "GET /api/v1/renters/{id}/bookings", "renter_bookings", srv.handleRenterBookings)
	srv.route(mux, "GET /api/v1/resources", "list_resources", srv.handleListResources)
	srv.route(mux, "GET /api/v1/resources/{id}", "get_resource", srv.handleGetResource)
	srv.route(mux, "POST /api/v1/resources/{id}/availability", "set_availability", srv.withActor(srv.handleSetAvailability))
	srv.route(mux, "GET /api/v1/resources/{id}/bookings", "resource_bookings", srv.handleResourceBookings)
	srv.route(mux, "GET /api/v1/resources/{id}/conflicts", "resource_conflicts", srv.handleConflicts)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(endpoint)
		h(w, r)
	})
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actorID int64)

// withActor resolves the acting user and applies the per-actor quota.
func (s *HTTPServer) withActor(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := s.auth.actorID(r)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errSystemActor) {
				status = http.StatusForbidden
			}
			writeError(w, status, err.Error())
			return
		}
		if !s.auth.allowActor(r.Context(), actorID) {
			writeError(w, http.StatusTooManyRequests, "actor rate limit exceeded")
			return
		}
		h(w, r, actorID)
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r, requestID := withRequestID(r)
		w.Header().Set(requestIDHeader, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
