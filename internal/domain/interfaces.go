package domain

import (
	"context"
	"errors"

	"hotelhub/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RoomStore persists room documents with their embedded reviews. A missing
// room is reported as (nil, nil).
type RoomStore interface {
	ListRooms(ctx context.Context) ([]*models.Room, error)
	FeaturedRooms(ctx context.Context, limit int) ([]*models.Room, error)
	RoomsByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]*models.Room, error)
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	InsertRoom(ctx context.Context, room *models.Room) (string, error)
	PushReview(ctx context.Context, roomID string, review models.Review) (models.UpdateResult, error)
	PullReviews(ctx context.Context, roomID, userEmail, timestamp string) (models.UpdateResult, error)
	SetRoomRating(ctx context.Context, roomID string, rating float64) (models.UpdateResult, error)
	PatchRoom(ctx context.Context, roomID string, patch map[string]any) (models.UpdateResult, error)
	SetAvailability(ctx context.Context, roomID string, available bool) (models.UpdateResult, error)
}

// BookingStore persists booking documents. A missing booking is reported as
// (nil, nil).
type BookingStore interface {
	InsertBooking(ctx context.Context, booking *models.Booking) (models.InsertResult, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	FindBooking(ctx context.Context, roomID, userEmail string) (*models.Booking, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
	BookingsByEmail(ctx context.Context, email string) ([]*models.Booking, error)
	SetBookingRatings(ctx context.Context, roomID, userEmail string, rating float64) (models.UpdateResult, error)
	RescheduleBooking(ctx context.Context, roomID, userEmail, newDate string) (models.UpdateResult, error)
	DeleteBookingByRoom(ctx context.Context, roomID string) (models.DeleteResult, error)
}

// Store is a document database holding both collections.
type Store interface {
	RoomStore
	BookingStore
	Ping(ctx context.Context) error
	Close() error
}

// RoomLocker serializes review mutations per room. The returned func
// releases the lock and is safe to call once.
type RoomLocker interface {
	Lock(ctx context.Context, roomID string) (unlock func(), err error)
}

// Identity is the verified caller produced by the identity gate.
type Identity struct {
	Email   string
	Subject string
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// LedgerWriter appends rows to the booking ledger spreadsheet.
type LedgerWriter interface {
	AppendRow(ctx context.Context, values []interface{}) error
}

// ErrInvalidID is returned by stores for identifiers they cannot parse.
var ErrInvalidID = errors.New("invalid id")
