package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"hotelhub/internal/domain"
	"hotelhub/internal/models"

	"github.com/google/uuid"
)

func (db *DB) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rooms, err := queryDocs[models.Room](ctx, db.conn, `SELECT doc FROM rooms ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (db *DB) FeaturedRooms(ctx context.Context, limit int) ([]*models.Room, error) {
	rooms, err := queryDocs[models.Room](ctx, db.conn, `
        SELECT doc FROM rooms
        WHERE availability = 1
        ORDER BY rating DESC, rowid
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured rooms: %w", err)
	}
	return rooms, nil
}

func (db *DB) RoomsByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]*models.Room, error) {
	rooms, err := queryDocs[models.Room](ctx, db.conn, `
        SELECT doc FROM rooms
        WHERE price >= ? AND price <= ?
        ORDER BY rowid`, minPrice, maxPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to filter rooms: %w", err)
	}
	return rooms, nil
}

func (db *DB) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room, err := queryDoc[models.Room](ctx, db.conn, `SELECT doc FROM rooms WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// InsertRoom stores a new room, generating an id when none is set.
func (db *DB) InsertRoom(ctx context.Context, room *models.Room) (string, error) {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	doc, err := json.Marshal(room)
	if err != nil {
		return "", fmt.Errorf("failed to encode room: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
        INSERT INTO rooms (id, price, availability, rating, doc)
        VALUES (?, ?, ?, ?, ?)`,
		room.ID, room.Price, room.Availability, room.Rating, string(doc))
	if err != nil {
		return "", fmt.Errorf("failed to insert room: %w", err)
	}
	return room.ID, nil
}

func (db *DB) PushReview(ctx context.Context, roomID string, review models.Review) (models.UpdateResult, error) {
	return db.mutateRoom(ctx, roomID, func(room *models.Room) bool {
		room.Reviews = append(room.Reviews, review)
		return true
	})
}

func (db *DB) PullReviews(ctx context.Context, roomID, userEmail, timestamp string) (models.UpdateResult, error) {
	return db.mutateRoom(ctx, roomID, func(room *models.Room) bool {
		kept := room.Reviews[:0:0]
		for _, r := range room.Reviews {
			if !r.Matches(userEmail, timestamp) {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(room.Reviews) {
			return false
		}
		room.Reviews = kept
		return true
	})
}

func (db *DB) SetRoomRating(ctx context.Context, roomID string, rating float64) (models.UpdateResult, error) {
	return db.mutateRoom(ctx, roomID, func(room *models.Room) bool {
		if room.Rating == rating {
			return false
		}
		room.Rating = rating
		return true
	})
}

func (db *DB) SetAvailability(ctx context.Context, roomID string, available bool) (models.UpdateResult, error) {
	return db.mutateRoom(ctx, roomID, func(room *models.Room) bool {
		if room.Availability == available {
			return false
		}
		room.Availability = available
		return true
	})
}

// PatchRoom sets each top-level key of patch on the room document.
func (db *DB) PatchRoom(ctx context.Context, roomID string, patch map[string]any) (models.UpdateResult, error) {
	if _, ok := patch["_id"]; ok {
		return models.UpdateResult{}, fmt.Errorf("%w: _id is immutable", domain.ErrInvalidID)
	}

	res := models.UpdateResult{Acknowledged: true}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT doc FROM rooms WHERE id = ?`, roomID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		res.MatchedCount = 1

		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}
		changed := false
		for k, v := range patch {
			if old, ok := doc[k]; !ok || !reflect.DeepEqual(old, normalize(v)) {
				doc[k] = v
				changed = true
			}
		}
		if !changed {
			return nil
		}

		merged, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		var room models.Room
		if err := json.Unmarshal(merged, &room); err != nil {
			return fmt.Errorf("patched room is invalid: %w", err)
		}
		if err := writeRoom(ctx, tx, &room); err != nil {
			return err
		}
		res.ModifiedCount = 1
		return nil
	})
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to patch room: %w", err)
	}
	return res, nil
}

// mutateRoom loads the room, applies fn and writes it back when fn reports a
// change. A missing room matches nothing.
func (db *DB) mutateRoom(ctx context.Context, roomID string, fn func(room *models.Room) bool) (models.UpdateResult, error) {
	res := models.UpdateResult{Acknowledged: true}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		room, err := queryDoc[models.Room](ctx, tx, `SELECT doc FROM rooms WHERE id = ?`, roomID)
		if err != nil || room == nil {
			return err
		}
		res.MatchedCount = 1
		if !fn(room) {
			return nil
		}
		if err := writeRoom(ctx, tx, room); err != nil {
			return err
		}
		res.ModifiedCount = 1
		return nil
	})
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to update room: %w", err)
	}
	return res, nil
}

func writeRoom(ctx context.Context, tx *sql.Tx, room *models.Room) error {
	doc, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
        UPDATE rooms SET price = ?, availability = ?, rating = ?, doc = ?
        WHERE id = ?`,
		room.Price, room.Availability, room.Rating, string(doc), room.ID)
	return err
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// normalize round-trips v through JSON so it compares equal to decoded
// document values.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
