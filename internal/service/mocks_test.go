package service

import (
	"context"
	"io"

	"hotelhub/internal/domain"
	"hotelhub/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

type mockRoomStore struct {
	mock.Mock
}

func (m *mockRoomStore) ListRooms(ctx context.Context) ([]*models.Room, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Room), args.Error(1)
}
func (m *mockRoomStore) FeaturedRooms(ctx context.Context, limit int) ([]*models.Room, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Room), args.Error(1)
}
func (m *mockRoomStore) RoomsByPriceRange(ctx context.Context, lo, hi float64) ([]*models.Room, error) {
	args := m.Called(ctx, lo, hi)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Room), args.Error(1)
}
func (m *mockRoomStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}
func (m *mockRoomStore) InsertRoom(ctx context.Context, room *models.Room) (string, error) {
	args := m.Called(ctx, room)
	return args.String(0), args.Error(1)
}
func (m *mockRoomStore) PushReview(ctx context.Context, id string, r models.Review) (models.UpdateResult, error) {
	args := m.Called(ctx, id, r)
	return args.Get(0).(models.UpdateResult), args.Error(1)
}
func (m *mockRoomStore) PullReviews(ctx context.Context, id, email, ts string) (models.UpdateResult, error) {
	args := m.Called(ctx, id, email, ts)
	return args.Get(0).(models.UpdateResult), args.Error(1)
}
func (m *mockRoomStore) SetRoomRating(ctx context.Context, id string, rating float64) (models.UpdateResult, error) {
	args := m.Called(ctx, id, rating)
	return args.Get(0).(models.UpdateResult), args.Error(1)
}
func (m *mockRoomStore) PatchRoom(ctx context.Context, id string, patch map[string]any) (models.UpdateResult, error) {
	args := m.Called(ctx, id, patch)
	return args.Get(0).(models.UpdateResult), args.Error(1)
}
func (m *mockRoomStore) SetAvailability(ctx context.Context, id string, available bool) (models.UpdateResult, error) {
	args := m.Called(ctx, id, available)
	return args.Get(0).(models.UpdateResult), args.Error(1)
}

type mockBookingStore struct {
	mock.Mock
}

func (m *mockBookingStore) InsertBooking(ctx context.Context, b *models.Booking) (models.InsertResult, error) {
	args := m.Called(ctx, b)
	return args.Get(0).(models.InsertResult), args.Error(1)
}
func (m *mockBookingStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingStore) FindBooking(ctx context.Context, roomID, email string) (*models.Booking, error) {
	args := m.Called(ctx, roomID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingStore) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingStore) BookingsByEmail(ctx context.Context, email string) ([]*models.Booking, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingStore) SetBookingRatings(ctx context.Context, roomID, email string, rating float64) (models.UpdateResult, error) {
	args := m.Called(ctx, roomID, email, rating)
	return args.Get(0).(models.UpdateResult), args.Error(1)
}
func (m *mockBookingStore) RescheduleBooking(ctx context.Context, roomID, email, date string) (models.UpdateResult, error) {
	args := m.Called(ctx, roomID, email, date)
	return args.Get(0).(models.UpdateResult), args.Error(1)
}
func (m *mockBookingStore) DeleteBookingByRoom(ctx context.Context, roomID string) (models.DeleteResult, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(models.DeleteResult), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockLocker struct {
	mock.Mock
	released int
}

func (m *mockLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	args := m.Called(ctx, roomID)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() { m.released++ }, nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func updated(matched, modified int64) models.UpdateResult {
	return models.UpdateResult{Acknowledged: true, MatchedCount: matched, ModifiedCount: modified}
}

func domainInvalidID() error {
	return domain.ErrInvalidID
}
