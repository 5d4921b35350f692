package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"hotelhub/internal/models"
	"hotelhub/internal/service"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Hello HotelHub!")
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("readiness check failed")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.Rooms.ListRooms(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *HTTPServer) handleFeatured(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.Rooms.FeaturedRooms(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *HTTPServer) handleFilterRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rooms, err := s.svc.Rooms.FilterRooms(r.Context(), q.Get("min"), q.Get("max"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// handleGetRoom answers null for an unknown room.
func (s *HTTPServer) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.svc.Rooms.GetRoom(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *HTTPServer) handleRoomReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.svc.Rooms.RoomReviews(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *HTTPServer) handleHomeReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.svc.Rooms.HomeReviews(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *HTTPServer) handleAddReview(w http.ResponseWriter, r *http.Request) {
	var review models.Review
	if !s.decodeBody(w, r, &review) {
		return
	}
	res, err := s.svc.Reviews.AddReview(r.Context(), mux.Vars(r)["id"], review)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type removeReviewRequest struct {
	UserEmail string             `json:"userEmail"`
	Timestamp models.LooseString `json:"timestamp"`
}

func (s *HTTPServer) handleRemoveReview(w http.ResponseWriter, r *http.Request) {
	var body removeReviewRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	res, err := s.svc.Reviews.RemoveReview(r.Context(), mux.Vars(r)["id"], body.UserEmail, string(body.Timestamp))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var booking models.Booking
	if !s.decodeBody(w, r, &booking) {
		return
	}
	res, err := s.svc.Bookings.CreateBooking(r.Context(), &booking)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !s.decodeBody(w, r, &patch) {
		return
	}
	res, err := s.svc.Bookings.SetAvailability(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelBooking treats {id} as the room id of the booking.
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Bookings.CancelBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rescheduleRequest struct {
	NewDate string `json:"newDate"`
	Email   string `json:"email"`
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var body rescheduleRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	res, err := s.svc.Bookings.RescheduleBooking(r.Context(), mux.Vars(r)["roomId"], body.Email, body.NewDate)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Bookings.MyBookings(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleBookingQRCode(w http.ResponseWriter, r *http.Request) {
	png, err := s.svc.Bookings.BookingQRCode(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
// On failure it writes the 400 response itself and returns false.
func (s *HTTPServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeServiceError(w, r, &service.Error{
			Kind:    service.ErrInvalidArgument,
			Message: "invalid JSON body",
			Err:     err,
		})
		return false
	}
	return true
}
