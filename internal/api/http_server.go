package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hotelhub/internal/config"
	"hotelhub/internal/domain"
	"hotelhub/internal/logging"
	"hotelhub/internal/metrics"
	"hotelhub/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services groups the use cases the HTTP API exposes.
type Services struct {
	Rooms    *service.RoomService
	Reviews  *service.ReviewService
	Bookings *service.BookingService
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HTTPServer is the public REST API of the hotel.
type HTTPServer struct {
	cfg      *config.APIConfig
	svc      Services
	store    pinger
	verifier domain.TokenVerifier
	limiter  *rateLimiter
	server   *http.Server
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, store pinger, verifier domain.TokenVerifier, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		store:    store,
		verifier: verifier,
		limiter:  newRateLimiter(cfg.RateLimit),
		logger:   logging.Component(logger, "http"),
	}

	router := mux.NewRouter()
	router.Use(srv.requestIDMiddleware, srv.loggingMiddleware, metricsMiddleware, srv.rateLimitMiddleware)
	srv.routes(router)

	origins := cfg.HTTP.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	})

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(r *mux.Router) {
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)

	r.HandleFunc("/rooms", s.handleListRooms).Methods(http.MethodGet)
	r.HandleFunc("/featured", s.handleFeatured).Methods(http.MethodGet)
	// /rooms/filter must win over /rooms/{id}
	r.HandleFunc("/rooms/filter", s.handleFilterRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/reviews", s.handleRoomReviews).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/review", s.handleAddReview).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/review", s.handleRemoveReview).Methods(http.MethodDelete)
	r.HandleFunc("/rooms/{id}/availability", s.handleSetAvailability).Methods(http.MethodPatch)
	r.HandleFunc("/home-reviews", s.handleHomeReviews).Methods(http.MethodGet)

	r.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	r.HandleFunc("/bookings/{id}", s.handleCancelBooking).Methods(http.MethodDelete)
	r.HandleFunc("/bookings/{roomId}", s.handleReschedule).Methods(http.MethodPatch)
	r.HandleFunc("/bookings/{id}/qrcode", s.handleBookingQRCode).Methods(http.MethodGet)
	r.Handle("/my-bookings", s.identityGate(s.emailGuard(http.HandlerFunc(s.handleMyBookings)))).Methods(http.MethodGet)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
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

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags the request with an id and a logger carrying it.
func (s *HTTPServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		l := s.logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logging.FromContext(r.Context(), s.logger).Info().
			Str("method", r.Method).
			Str("route", routeName(r)).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.ObserveHTTP(routeName(r), fmt.Sprint(recorder.status), time.Since(start))
	})
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r.RemoteAddr)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeName returns the matched path template so metrics stay low-cardinality.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}

// writeServiceError maps a service error onto its status and body and logs it.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	logger := logging.FromContext(r.Context(), s.logger)
	ev := logger.Warn()
	if statusCode >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).Str("route", routeName(r)).Int("status", statusCode).Msg("request failed")

	if statusCode >= http.StatusInternalServerError {
		writeError(w, statusCode, service.PublicMessage(err))
		return
	}
	writeMessage(w, statusCode, service.PublicMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
