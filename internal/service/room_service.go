package service

import (
	"context"
	"sort"
	"strings"

	"hotelhub/internal/domain"
	"hotelhub/internal/models"

	"github.com/rs/zerolog"
)

type RoomService struct {
	rooms  domain.RoomStore
	logger *zerolog.Logger
}

func NewRoomService(rooms domain.RoomStore, logger *zerolog.Logger) *RoomService {
	return &RoomService{rooms: rooms, logger: logger}
}

func (s *RoomService) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return nil, storeErr("list rooms", err)
	}
	return nonNil(rooms), nil
}

// FeaturedRooms returns the best rated available rooms.
func (s *RoomService) FeaturedRooms(ctx context.Context) ([]*models.Room, error) {
	rooms, err := s.rooms.FeaturedRooms(ctx, models.FeaturedRoomsLimit)
	if err != nil {
		return nil, storeErr("list featured rooms", err)
	}
	return nonNil(rooms), nil
}

// FilterRooms returns rooms priced within [min, max]. Bounds are parsed
// leniently; anything without a leading integer falls back to the default.
func (s *RoomService) FilterRooms(ctx context.Context, minRaw, maxRaw string) ([]*models.Room, error) {
	minPrice := ParsePriceBound(minRaw, models.DefaultMinPrice)
	maxPrice := ParsePriceBound(maxRaw, models.DefaultMaxPrice)

	rooms, err := s.rooms.RoomsByPriceRange(ctx, float64(minPrice), float64(maxPrice))
	if err != nil {
		return nil, storeErr("filter rooms", err)
	}
	return nonNil(rooms), nil
}

// GetRoom returns nil without error when the room does not exist.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.rooms.GetRoom(ctx, id)
	if err != nil {
		return nil, storeErr("load room", err)
	}
	return room, nil
}

func (s *RoomService) RoomReviews(ctx context.Context, id string) ([]models.Review, error) {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if room == nil || room.Reviews == nil {
		return []models.Review{}, nil
	}
	return room.Reviews, nil
}

// HomeReviews collects the most recent reviews across all rooms, newest
// first. Reviews with unparseable timestamps sort last.
func (s *RoomService) HomeReviews(ctx context.Context) ([]models.Review, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return nil, storeErr("list rooms", err)
	}

	all := make([]models.Review, 0)
	for _, room := range rooms {
		all = append(all, room.Reviews...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		ti, oki := all[i].Time()
		tj, okj := all[j].Time()
		if oki != okj {
			return oki
		}
		return ti.After(tj)
	})

	if len(all) > models.HomeReviewsLimit {
		all = all[:models.HomeReviewsLimit]
	}
	return all, nil
}

// ParsePriceBound reads the leading integer of raw: optional spaces, an
// optional sign, then digits. Anything else, and a zero bound, yields def.
func ParsePriceBound(raw string, def int64) int64 {
	s := strings.TrimLeft(raw, " \t\n\r")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}

	var n int64
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		if n < 1<<53 {
			n = n*10 + int64(s[digits]-'0')
		}
		digits++
	}
	if digits == 0 || n == 0 {
		return def
	}
	if neg {
		return -n
	}
	return n
}

func nonNil(rooms []*models.Room) []*models.Room {
	if rooms == nil {
		return []*models.Room{}
	}
	return rooms
}
