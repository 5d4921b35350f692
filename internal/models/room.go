package models

// Room is a bookable unit. Rating is a cache of the mean of Reviews and is
// rewritten after every review mutation; readers must tolerate staleness.
type Room struct {
	ID           string         `bson:"_id,omitempty"`
	Price        float64        `bson:"price"`
	Availability bool           `bson:"availability"`
	Rating       float64        `bson:"rating"`
	Reviews      []Review       `bson:"reviews,omitempty"`
	Extra        map[string]any `bson:",inline"`
}

func (r Room) MarshalJSON() ([]byte, error) {
	reviews := r.Reviews
	if reviews == nil {
		reviews = []Review{}
	}
	return mergeDocument(r.Extra, map[string]any{
		"_id":          r.ID,
		"price":        r.Price,
		"availability": r.Availability,
		"rating":       r.Rating,
		"reviews":      reviews,
	})
}

func (r *Room) UnmarshalJSON(data []byte) error {
	fields, extra, err := splitDocument(data, "_id", "price", "availability", "rating", "reviews")
	if err != nil {
		return err
	}
	var out Room
	if out.ID, err = decodeLooseString(fields["_id"]); err != nil {
		return err
	}
	if err := decodeField(fields, "price", &out.Price); err != nil {
		return err
	}
	if err := decodeField(fields, "availability", &out.Availability); err != nil {
		return err
	}
	if err := decodeField(fields, "rating", &out.Rating); err != nil {
		return err
	}
	if err := decodeField(fields, "reviews", &out.Reviews); err != nil {
		return err
	}
	out.Extra = extra
	*r = out
	return nil
}
