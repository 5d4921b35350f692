package models

import (
	"math"
	"strconv"
	"time"
)

// MaxRating is the highest rating a review may carry.
const MaxRating = 5

// Review is embedded in a Room. It has no id of its own: (UserEmail,
// Timestamp) identifies it. Anything else the client sends lives in Extra.
type Review struct {
	UserEmail string         `bson:"userEmail"`
	Rating    float64        `bson:"rating"`
	Timestamp string         `bson:"timestamp"`
	Extra     map[string]any `bson:",inline"`

	// ratingErr keeps a decode failure of the rating field until Validate.
	ratingErr error
}

// Validate reports whether the review carries a usable rating.
func (r Review) Validate() error {
	if r.ratingErr != nil {
		return r.ratingErr
	}
	return ValidateRating(r.Rating)
}

// ValidateRating accepts finite ratings in [0, MaxRating].
func ValidateRating(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidRating
	}
	if v < 0 || v > MaxRating {
		return ErrRatingOutOfRange
	}
	return nil
}

// Matches reports whether the review carries the given composite key.
func (r Review) Matches(userEmail, timestamp string) bool {
	return r.UserEmail == userEmail && r.Timestamp == timestamp
}

// Time parses Timestamp. The boolean is false for unparseable values.
func (r Review) Time() (time.Time, bool) {
	return ParseTimestamp(r.Timestamp)
}

func (r Review) MarshalJSON() ([]byte, error) {
	return mergeDocument(r.Extra, map[string]any{
		"userEmail": r.UserEmail,
		"rating":    r.Rating,
		"timestamp": r.Timestamp,
	})
}

func (r *Review) UnmarshalJSON(data []byte) error {
	fields, extra, err := splitDocument(data, "userEmail", "rating", "timestamp")
	if err != nil {
		return err
	}
	var out Review
	if err := decodeField(fields, "userEmail", &out.UserEmail); err != nil {
		return err
	}
	out.Rating, out.ratingErr = decodeRating(fields["rating"])
	if out.Timestamp, err = decodeLooseString(fields["timestamp"]); err != nil {
		return err
	}
	out.Extra = extra
	*r = out
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseTimestamp understands the formats clients send review timestamps in:
// ISO 8601 variants, plain dates, HTTP dates and epoch milliseconds.
func ParseTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// ReviewRatings extracts the rating of every review in order.
func ReviewRatings(reviews []Review) []float64 {
	out := make([]float64, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, r.Rating)
	}
	return out
}
