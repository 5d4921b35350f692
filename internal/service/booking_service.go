package service

import (
	"context"
	"fmt"
	"net/url"

	"hotelhub/internal/domain"
	"hotelhub/internal/events"
	"hotelhub/internal/metrics"
	"hotelhub/internal/models"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
)

type CancelResult struct {
	Result            models.DeleteResult `json:"result"`
	UpdateAvailablity models.UpdateResult `json:"updateAvailablity"`
}

type BookingService struct {
	rooms    domain.RoomStore
	bookings domain.BookingStore
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewBookingService(rooms domain.RoomStore, bookings domain.BookingStore, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		rooms:    rooms,
		bookings: bookings,
		eventBus: eventBus,
		logger:   logger,
	}
}

// CreateBooking stores the booking as sent. Room existence and availability
// are the caller's concern; the store assigns the id.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) (models.InsertResult, error) {
	booking.ID = ""
	res, err := s.bookings.InsertBooking(ctx, booking)
	if err != nil {
		return models.InsertResult{}, storeErr("create booking", err)
	}

	metrics.IncBooking("create")
	s.publishEvent(models.EventBookingCreated, events.BookingEventPayload{
		BookingID:   res.InsertedID,
		RoomID:      booking.RoomID,
		UserEmail:   booking.UserEmail,
		BookingDate: booking.BookingDate,
	})
	return res, nil
}

// SetAvailability merges patch onto the room's top-level fields.
func (s *BookingService) SetAvailability(ctx context.Context, roomID string, patch map[string]any) (models.UpdateResult, error) {
	if len(patch) == 0 {
		return models.UpdateResult{}, invalidArgument("patch must not be empty")
	}
	res, err := s.rooms.PatchRoom(ctx, roomID, patch)
	if err != nil {
		return models.UpdateResult{}, storeErr("update room", err)
	}
	metrics.IncBooking("availability")
	return res, nil
}

// CancelBooking deletes the booking referencing roomID and marks that room
// available. The room is released even when no booking matched.
func (s *BookingService) CancelBooking(ctx context.Context, roomID string) (*CancelResult, error) {
	if roomID == "" {
		return nil, invalidArgument("room id is required")
	}

	deleted, err := s.bookings.DeleteBookingByRoom(ctx, roomID)
	if err != nil {
		return nil, storeErr("delete booking", err)
	}

	// Комната освобождается в любом случае
	updated, err := s.rooms.SetAvailability(ctx, roomID, true)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Int64("deleted", deleted.DeletedCount).Msg("booking deleted but room availability not restored")
		return nil, storeErr("update room availability", err)
	}

	metrics.IncBooking("cancel")
	s.publishEvent(models.EventBookingCancelled, events.BookingEventPayload{
		RoomID:  roomID,
		Deleted: deleted.DeletedCount,
	})

	return &CancelResult{Result: deleted, UpdateAvailablity: updated}, nil
}

// MyBookings lists the bookings of an already verified email.
func (s *BookingService) MyBookings(ctx context.Context, email string) ([]*models.Booking, error) {
	if email == "" {
		return nil, invalidArgument("Email is required")
	}
	list, err := s.bookings.BookingsByEmail(ctx, email)
	if err != nil {
		return nil, storeErr("list bookings", err)
	}
	if list == nil {
		list = []*models.Booking{}
	}
	return list, nil
}

func (s *BookingService) RescheduleBooking(ctx context.Context, roomID, email, newDate string) (models.UpdateResult, error) {
	if roomID == "" || email == "" || newDate == "" {
		return models.UpdateResult{}, invalidArgument("roomId, email and newDate are required")
	}
	res, err := s.bookings.RescheduleBooking(ctx, roomID, email, newDate)
	if err != nil {
		return models.UpdateResult{}, storeErr("reschedule booking", err)
	}

	metrics.IncBooking("reschedule")
	s.publishEvent(models.EventBookingRescheduled, events.BookingEventPayload{
		RoomID:      roomID,
		UserEmail:   email,
		BookingDate: newDate,
	})
	return res, nil
}

// BookingQRCode renders a PNG confirmation code for the booking.
func (s *BookingService) BookingQRCode(ctx context.Context, bookingID string) ([]byte, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeErr("load booking", err)
	}
	if booking == nil {
		return nil, notFound("booking not found")
	}

	data := fmt.Sprintf("hotelhub://bookings/%s?room=%s", url.PathEscape(booking.ID), url.QueryEscape(booking.RoomID))
	png, err := qrcode.Encode(data, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}

func (s *BookingService) publishEvent(eventType string, payload events.BookingEventPayload) {
	if s.eventBus == nil {
		return
	}
	metrics.IncEvent(eventType)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("room_id", payload.RoomID).Msg("publish event error")
	}
}
