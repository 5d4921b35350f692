package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidRating    = errors.New("rating must be a number")
	ErrMissingRating    = errors.New("rating is required")
	ErrRatingOutOfRange = errors.New("rating must be between 0 and 5")
	ErrInvalidString    = errors.New("expected a string or number")
)

// splitDocument separates the known top-level keys of a JSON object from the
// free-form rest. Unknown values are decoded into plain Go values.
func splitDocument(data []byte, known ...string) (map[string]json.RawMessage, map[string]any, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, errors.New("document must be a JSON object")
	}

	fields := make(map[string]json.RawMessage, len(known))
	for _, k := range known {
		if v, ok := raw[k]; ok {
			fields[k] = v
			delete(raw, k)
		}
	}

	var extra map[string]any
	if len(raw) > 0 {
		extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return nil, nil, fmt.Errorf("field %q: %w", k, err)
			}
			extra[k] = val
		}
	}
	return fields, extra, nil
}

// mergeDocument renders extras and known fields as one flat object. Known
// fields win on collision.
func mergeDocument(extra, fields map[string]any) ([]byte, error) {
	out := make(map[string]any, len(extra)+len(fields))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeLooseString accepts a JSON string or number; numbers keep their
// literal digits.
func decodeLooseString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", ErrInvalidString
	}
	return n.String(), nil
}

// LooseString decodes from a JSON string or number, the same way review
// timestamps are stored.
type LooseString string

func (l *LooseString) UnmarshalJSON(data []byte) error {
	s, err := decodeLooseString(data)
	if err != nil {
		return err
	}
	*l = LooseString(s)
	return nil
}

// decodeRating accepts a JSON number or a numeric string. NaN and
// infinities are rejected.
func decodeRating(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, ErrMissingRating
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, ErrInvalidRating
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, ErrInvalidRating
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidRating
	}
	return f, nil
}

func decodeField[T any](fields map[string]json.RawMessage, key string, dst *T) error {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}
