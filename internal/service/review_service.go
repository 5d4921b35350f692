package service

import (
	"context"

	"hotelhub/internal/domain"
	"hotelhub/internal/events"
	"hotelhub/internal/metrics"
	"hotelhub/internal/models"

	"github.com/rs/zerolog"
)

const msgReviewWithoutBooking = "You cannot review this room without booking."

// RatingValue is the aggregate as returned to clients.
type RatingValue struct {
	Rating float64 `json:"rating"`
}

type AddReviewResult struct {
	Result     models.UpdateResult `json:"result"`
	AvgRating  RatingValue         `json:"avgRating"`
	Propagated models.UpdateResult `json:"propagated"`
}

type RemoveReviewResult struct {
	Result        models.UpdateResult `json:"result"`
	UpdateRatings RatingValue         `json:"updateRatings"`
	Propagated    models.UpdateResult `json:"propagated"`
}

// ReviewService keeps a room's reviews, its cached rating and the rating
// copies on its bookings in step. The writes are not atomic across the two
// collections; with a locker set, mutations on one room are serialized.
type ReviewService struct {
	rooms    domain.RoomStore
	bookings domain.BookingStore
	locker   domain.RoomLocker
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

// NewReviewService wires the workflow. locker and eventBus may be nil.
func NewReviewService(rooms domain.RoomStore, bookings domain.BookingStore, locker domain.RoomLocker, eventBus domain.EventPublisher, logger *zerolog.Logger) *ReviewService {
	return &ReviewService{
		rooms:    rooms,
		bookings: bookings,
		locker:   locker,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *ReviewService) AddReview(ctx context.Context, roomID string, review models.Review) (*AddReviewResult, error) {
	if roomID == "" {
		return nil, invalidArgument("room id is required")
	}

	// Отзыв можно оставить только после бронирования
	if review.UserEmail == "" {
		metrics.IncReviewRejected("no_booking")
		return nil, &Error{Kind: ErrPermissionDenied, Message: msgReviewWithoutBooking}
	}
	booking, err := s.bookings.FindBooking(ctx, roomID, review.UserEmail)
	if err != nil {
		return nil, storeErr("find booking", err)
	}
	if booking == nil {
		metrics.IncReviewRejected("no_booking")
		return nil, &Error{Kind: ErrPermissionDenied, Message: msgReviewWithoutBooking}
	}
	if err := review.Validate(); err != nil {
		metrics.IncReviewRejected("invalid_rating")
		return nil, &Error{Kind: ErrInvalidArgument, Message: err.Error(), Err: err}
	}

	unlock, err := s.lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := s.rooms.PushReview(ctx, roomID, review)
	if err != nil {
		return nil, storeErr("add review", err)
	}

	rating, err := s.recompute(ctx, roomID)
	if err != nil {
		return nil, err
	}

	propagated, err := s.bookings.SetBookingRatings(ctx, roomID, review.UserEmail, rating)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Float64("rating", rating).Msg("room rating updated but booking copies are stale")
		return nil, storeErr("update booking ratings", err)
	}

	metrics.IncReview("add")
	s.publish(models.EventReviewAdded, events.ReviewEventPayload{
		RoomID:             roomID,
		UserEmail:          review.UserEmail,
		Timestamp:          review.Timestamp,
		Rating:             review.Rating,
		RoomRating:         rating,
		PropagatedBookings: propagated.ModifiedCount,
	})

	return &AddReviewResult{
		Result:     res,
		AvgRating:  RatingValue{Rating: rating},
		Propagated: propagated,
	}, nil
}

// RemoveReview deletes every review of the room with the given
// (userEmail, timestamp) key and propagates the new aggregate the same way
// AddReview does.
func (s *ReviewService) RemoveReview(ctx context.Context, roomID, userEmail, timestamp string) (*RemoveReviewResult, error) {
	if userEmail == "" || timestamp == "" {
		metrics.IncReviewRejected("missing_data")
		return nil, invalidArgument("Missing data")
	}
	if roomID == "" {
		return nil, invalidArgument("room id is required")
	}

	unlock, err := s.lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := s.rooms.PullReviews(ctx, roomID, userEmail, timestamp)
	if err != nil {
		return nil, storeErr("remove review", err)
	}

	rating, err := s.recompute(ctx, roomID)
	if err != nil {
		return nil, err
	}

	propagated, err := s.bookings.SetBookingRatings(ctx, roomID, userEmail, rating)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Float64("rating", rating).Msg("room rating updated but booking copies are stale")
		return nil, storeErr("update booking ratings", err)
	}

	metrics.IncReview("remove")
	s.publish(models.EventReviewRemoved, events.ReviewEventPayload{
		RoomID:             roomID,
		UserEmail:          userEmail,
		Timestamp:          timestamp,
		RoomRating:         rating,
		Removed:            res.ModifiedCount,
		PropagatedBookings: propagated.ModifiedCount,
	})

	return &RemoveReviewResult{
		Result:        res,
		UpdateRatings: RatingValue{Rating: rating},
		Propagated:    propagated,
	}, nil
}

// recompute re-reads the room, aggregates its ratings and caches the result
// on the room.
func (s *ReviewService) recompute(ctx context.Context, roomID string) (float64, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return 0, storeErr("load room", err)
	}
	if room == nil {
		return 0, notFound("room not found")
	}

	rating := AggregateRating(models.ReviewRatings(room.Reviews))
	if _, err := s.rooms.SetRoomRating(ctx, roomID, rating); err != nil {
		return 0, storeErr("update room rating", err)
	}

	s.logger.Debug().Str("room_id", roomID).Int("reviews", len(room.Reviews)).Float64("rating", rating).Msg("room rating recomputed")
	return rating, nil
}

func (s *ReviewService) lock(ctx context.Context, roomID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.Lock(ctx, roomID)
	if err != nil {
		return nil, &Error{Kind: ErrStorage, Message: "acquire room lock failed", Err: err}
	}
	return unlock, nil
}

func (s *ReviewService) publish(eventType string, payload events.ReviewEventPayload) {
	if s.eventBus == nil {
		return
	}
	metrics.IncEvent(eventType)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("room_id", payload.RoomID).Msg("publish event error")
	}
}
