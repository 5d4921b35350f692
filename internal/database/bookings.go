package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hotelhub/internal/models"

	"github.com/google/uuid"
)

func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) (models.InsertResult, error) {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	doc, err := json.Marshal(booking)
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to encode booking: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
        INSERT INTO bookings (id, room_id, user_email, doc)
        VALUES (?, ?, ?, ?)`,
		booking.ID, booking.RoomID, booking.UserEmail, string(doc))
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to create booking: %w", err)
	}
	return models.InsertResult{Acknowledged: true, InsertedID: booking.ID}, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := queryDoc[models.Booking](ctx, db.conn, `SELECT doc FROM bookings WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// FindBooking returns the oldest booking of userEmail for roomID.
func (db *DB) FindBooking(ctx context.Context, roomID, userEmail string) (*models.Booking, error) {
	b, err := queryDoc[models.Booking](ctx, db.conn, `
        SELECT doc FROM bookings
        WHERE room_id = ? AND user_email = ?
        ORDER BY rowid LIMIT 1`, roomID, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

func (db *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	list, err := queryDocs[models.Booking](ctx, db.conn, `SELECT doc FROM bookings ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return list, nil
}

func (db *DB) BookingsByEmail(ctx context.Context, email string) ([]*models.Booking, error) {
	list, err := queryDocs[models.Booking](ctx, db.conn, `
        SELECT doc FROM bookings WHERE user_email = ? ORDER BY rowid`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	return list, nil
}

// SetBookingRatings copies rating onto every booking of the (room, user) pair.
func (db *DB) SetBookingRatings(ctx context.Context, roomID, userEmail string, rating float64) (models.UpdateResult, error) {
	res := models.UpdateResult{Acknowledged: true}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		list, err := queryDocs[models.Booking](ctx, tx, `
            SELECT doc FROM bookings WHERE room_id = ? AND user_email = ?`, roomID, userEmail)
		if err != nil {
			return err
		}
		for _, b := range list {
			res.MatchedCount++
			if b.Rating != nil && *b.Rating == rating {
				continue
			}
			r := rating
			b.Rating = &r
			if err := writeBooking(ctx, tx, b); err != nil {
				return err
			}
			res.ModifiedCount++
		}
		return nil
	})
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to update booking ratings: %w", err)
	}
	return res, nil
}

// RescheduleBooking moves the oldest matching booking to newDate.
func (db *DB) RescheduleBooking(ctx context.Context, roomID, userEmail, newDate string) (models.UpdateResult, error) {
	res := models.UpdateResult{Acknowledged: true}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := queryDoc[models.Booking](ctx, tx, `
            SELECT doc FROM bookings
            WHERE room_id = ? AND user_email = ?
            ORDER BY rowid LIMIT 1`, roomID, userEmail)
		if err != nil || b == nil {
			return err
		}
		res.MatchedCount = 1
		if b.BookingDate == newDate {
			return nil
		}
		b.BookingDate = newDate
		if err := writeBooking(ctx, tx, b); err != nil {
			return err
		}
		res.ModifiedCount = 1
		return nil
	})
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to reschedule booking: %w", err)
	}
	return res, nil
}

// DeleteBookingByRoom removes the oldest booking referencing roomID.
func (db *DB) DeleteBookingByRoom(ctx context.Context, roomID string) (models.DeleteResult, error) {
	result, err := db.conn.ExecContext(ctx, `
        DELETE FROM bookings WHERE rowid = (
            SELECT rowid FROM bookings WHERE room_id = ? ORDER BY rowid LIMIT 1
        )`, roomID)
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("failed to delete booking: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return models.DeleteResult{Acknowledged: true, DeletedCount: n}, nil
}

func writeBooking(ctx context.Context, tx *sql.Tx, b *models.Booking) error {
	if b.ID == "" {
		return errors.New("booking without id")
	}
	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode booking: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
        UPDATE bookings SET room_id = ?, user_email = ?, doc = ? WHERE id = ?`,
		b.RoomID, b.UserEmail, string(doc), b.ID)
	return err
}
