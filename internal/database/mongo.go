package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotelhub/internal/config"
	"hotelhub/internal/domain"
	"hotelhub/internal/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewMongoClient connects and pings within cfg.ConnectTimeout. Nested
// documents decode as maps so free-form fields render as JSON objects.
func NewMongoClient(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// MongoStore keeps rooms and bookings in two collections of one database.
type MongoStore struct {
	client   *mongo.Client
	rooms    *mongo.Collection
	bookings *mongo.Collection
	timeout  time.Duration
	logger   *zerolog.Logger
}

func NewMongoStore(client *mongo.Client, cfg config.MongoConfig, logger *zerolog.Logger) *MongoStore {
	db := client.Database(cfg.Database)
	return &MongoStore{
		client:   client,
		rooms:    db.Collection(cfg.RoomsCollection),
		bookings: db.Collection(cfg.BookingsCollection),
		timeout:  cfg.OperationTimeout,
		logger:   logger,
	}
}

func (s *MongoStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", domain.ErrInvalidID, id)
	}
	return oid, nil
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

func updateResult(res *mongo.UpdateResult) models.UpdateResult {
	out := models.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
	}
	if res.UpsertedID != nil {
		id := idString(res.UpsertedID)
		out.UpsertedID = &id
	}
	return out
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]*T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOneOptions) (*T, error) {
	v := new(T)
	err := coll.FindOne(ctx, filter, opts...).Decode(v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *MongoStore) ListRooms(ctx context.Context) ([]*models.Room, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rooms, err := findAll[models.Room](ctx, s.rooms, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (s *MongoStore) FeaturedRooms(ctx context.Context, limit int) ([]*models.Room, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "rating", Value: -1}}).SetLimit(int64(limit))
	rooms, err := findAll[models.Room](ctx, s.rooms, bson.M{"availability": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured rooms: %w", err)
	}
	return rooms, nil
}

func (s *MongoStore) RoomsByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]*models.Room, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{"price": bson.M{"$gte": minPrice, "$lte": maxPrice}}
	rooms, err := findAll[models.Room](ctx, s.rooms, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to filter rooms: %w", err)
	}
	return rooms, nil
}

func (s *MongoStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	room, err := findOne[models.Room](ctx, s.rooms, bson.M{"_id": oid})
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// InsertRoom always lets the server assign the ObjectID.
func (s *MongoStore) InsertRoom(ctx context.Context, room *models.Room) (string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	room.ID = ""
	res, err := s.rooms.InsertOne(ctx, room)
	if err != nil {
		return "", fmt.Errorf("failed to insert room: %w", err)
	}
	room.ID = idString(res.InsertedID)
	return room.ID, nil
}

func (s *MongoStore) updateRoom(ctx context.Context, roomID string, update interface{}) (models.UpdateResult, error) {
	oid, err := objectID(roomID)
	if err != nil {
		return models.UpdateResult{}, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.rooms.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to update room: %w", err)
	}
	return updateResult(res), nil
}

func (s *MongoStore) PushReview(ctx context.Context, roomID string, review models.Review) (models.UpdateResult, error) {
	return s.updateRoom(ctx, roomID, bson.M{"$push": bson.M{"reviews": review}})
}

func (s *MongoStore) PullReviews(ctx context.Context, roomID, userEmail, timestamp string) (models.UpdateResult, error) {
	return s.updateRoom(ctx, roomID, bson.M{"$pull": bson.M{"reviews": bson.M{
		"userEmail": userEmail,
		"timestamp": timestamp,
	}}})
}

func (s *MongoStore) SetRoomRating(ctx context.Context, roomID string, rating float64) (models.UpdateResult, error) {
	return s.updateRoom(ctx, roomID, bson.M{"$set": bson.M{"rating": rating}})
}

func (s *MongoStore) PatchRoom(ctx context.Context, roomID string, patch map[string]any) (models.UpdateResult, error) {
	if _, ok := patch["_id"]; ok {
		return models.UpdateResult{}, fmt.Errorf("%w: _id is immutable", domain.ErrInvalidID)
	}
	return s.updateRoom(ctx, roomID, bson.M{"$set": bson.M(patch)})
}

func (s *MongoStore) SetAvailability(ctx context.Context, roomID string, available bool) (models.UpdateResult, error) {
	return s.updateRoom(ctx, roomID, bson.M{"$set": bson.M{"availability": available}})
}

func (s *MongoStore) InsertBooking(ctx context.Context, booking *models.Booking) (models.InsertResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.bookings.InsertOne(ctx, booking)
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to create booking: %w", err)
	}
	booking.ID = idString(res.InsertedID)
	return models.InsertResult{Acknowledged: true, InsertedID: booking.ID}, nil
}

func (s *MongoStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	b, err := findOne[models.Booking](ctx, s.bookings, bson.M{"_id": oid})
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (s *MongoStore) FindBooking(ctx context.Context, roomID, userEmail string) (*models.Booking, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	b, err := findOne[models.Booking](ctx, s.bookings, bson.M{"roomId": roomID, "userEmail": userEmail})
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

func (s *MongoStore) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	list, err := findAll[models.Booking](ctx, s.bookings, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return list, nil
}

func (s *MongoStore) BookingsByEmail(ctx context.Context, email string) ([]*models.Booking, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	list, err := findAll[models.Booking](ctx, s.bookings, bson.M{"userEmail": email})
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	return list, nil
}

func (s *MongoStore) SetBookingRatings(ctx context.Context, roomID, userEmail string, rating float64) (models.UpdateResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.bookings.UpdateMany(ctx,
		bson.M{"roomId": roomID, "userEmail": userEmail},
		bson.M{"$set": bson.M{"rating": rating}})
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to update booking ratings: %w", err)
	}
	return updateResult(res), nil
}

func (s *MongoStore) RescheduleBooking(ctx context.Context, roomID, userEmail, newDate string) (models.UpdateResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.bookings.UpdateOne(ctx,
		bson.M{"roomId": roomID, "userEmail": userEmail},
		bson.M{"$set": bson.M{"bookingDate": newDate}})
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to reschedule booking: %w", err)
	}
	return updateResult(res), nil
}

func (s *MongoStore) DeleteBookingByRoom(ctx context.Context, roomID string) (models.DeleteResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.bookings.DeleteOne(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("failed to delete booking: %w", err)
	}
	return models.DeleteResult{Acknowledged: true, DeletedCount: res.DeletedCount}, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
