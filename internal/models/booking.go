package models

// Booking links a user to a room. Rating duplicates the room's aggregate as
// of the last review mutation by the same user on that room.
type Booking struct {
	ID          string         `bson:"_id,omitempty"`
	RoomID      string         `bson:"roomId"`
	UserEmail   string         `bson:"userEmail"`
	BookingDate string         `bson:"bookingDate,omitempty"`
	Rating      *float64       `bson:"rating,omitempty"`
	Extra       map[string]any `bson:",inline"`
}

func (b Booking) MarshalJSON() ([]byte, error) {
	fields := map[string]any{
		"_id":       b.ID,
		"roomId":    b.RoomID,
		"userEmail": b.UserEmail,
	}
	if b.BookingDate != "" {
		fields["bookingDate"] = b.BookingDate
	}
	if b.Rating != nil {
		fields["rating"] = *b.Rating
	}
	return mergeDocument(b.Extra, fields)
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	fields, extra, err := splitDocument(data, "_id", "roomId", "userEmail", "bookingDate", "rating")
	if err != nil {
		return err
	}
	var out Booking
	if out.ID, err = decodeLooseString(fields["_id"]); err != nil {
		return err
	}
	if out.RoomID, err = decodeLooseString(fields["roomId"]); err != nil {
		return err
	}
	if err := decodeField(fields, "userEmail", &out.UserEmail); err != nil {
		return err
	}
	if out.BookingDate, err = decodeLooseString(fields["bookingDate"]); err != nil {
		return err
	}
	if raw, ok := fields["rating"]; ok && !isNull(raw) {
		rating, err := decodeRating(raw)
		if err != nil {
			return err
		}
		out.Rating = &rating
	}
	out.Extra = extra
	*b = out
	return nil
}
