package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hotelhub/internal/auth"
	"hotelhub/internal/config"
	"hotelhub/internal/database"
	"hotelhub/internal/domain"
	"hotelhub/internal/models"
	"hotelhub/internal/repository"
	"hotelhub/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "api-test-secret"

type testEnv struct {
	db       *database.DB
	ts       *httptest.Server
	verifier *auth.JWTVerifier
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestHTTPServer(cfg *config.APIConfig, db *database.DB, locker domain.RoomLocker) (*HTTPServer, *auth.JWTVerifier) {
	logger := zerolog.New(io.Discard)
	verifier := auth.NewJWTVerifier(config.AuthConfig{JWTSecret: testSecret})
	svc := Services{
		Rooms:    service.NewRoomService(db, &logger),
		Reviews:  service.NewReviewService(db, db, locker, nil, &logger),
		Bookings: service.NewBookingService(db, db, nil, &logger),
	}
	return NewHTTPServer(cfg, svc, db, verifier, &logger), verifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	server, verifier := newTestHTTPServer(&config.APIConfig{}, db, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{db: db, ts: ts, verifier: verifier}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) room(t *testing.T, room *models.Room) string {
	t.Helper()
	id, err := e.db.InsertRoom(context.Background(), room)
	require.NoError(t, err)
	return id
}

func (e *testEnv) booking(t *testing.T, roomID, email string) {
	t.Helper()
	_, err := e.db.InsertBooking(context.Background(), &models.Booking{RoomID: roomID, UserEmail: email, BookingDate: "2024-05-01"})
	require.NoError(t, err)
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Hello HotelHub!", string(body))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestRequestIDPassthrough(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", nil, requestIDHeader, "req-42")
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))
}

func TestHealthzAndReadyz(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeJSON[map[string]string](t, resp)["status"])

	resp = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz_DBFail(t *testing.T) {
	env := newTestEnv(t)
	env.db.Close() // Make it fail

	resp := env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "store unavailable", decodeJSON[map[string]string](t, resp)["error"])
}

func TestReviewFlow_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 100, Availability: true})
	env.booking(t, roomID, "guest@hotel.io")

	review := map[string]any{
		"userEmail": "guest@hotel.io",
		"rating":    5,
		"timestamp": "2024-05-02T10:00:00Z",
		"comment":   "great",
	}
	resp := env.do(t, http.MethodPost, "/rooms/"+roomID+"/review", review)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var added struct {
		Result     models.UpdateResult `json:"result"`
		AvgRating  struct{ Rating float64 } `json:"avgRating"`
		Propagated models.UpdateResult `json:"propagated"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	assert.Equal(t, int64(1), added.Result.ModifiedCount)
	assert.Equal(t, 5.0, added.AvgRating.Rating)
	assert.Equal(t, int64(1), added.Propagated.ModifiedCount)

	resp = env.do(t, http.MethodGet, "/rooms/"+roomID, nil)
	room := decodeJSON[models.Room](t, resp)
	assert.Equal(t, 5.0, room.Rating)
	require.Len(t, room.Reviews, 1)
	assert.Equal(t, "great", room.Reviews[0].Extra["comment"])

	resp = env.do(t, http.MethodGet, "/rooms/"+roomID+"/reviews", nil)
	assert.Len(t, decodeJSON[[]models.Review](t, resp), 1)

	resp = env.do(t, http.MethodDelete, "/rooms/"+roomID+"/review", map[string]string{
		"userEmail": "guest@hotel.io",
		"timestamp": "2024-05-02T10:00:00Z",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	removed := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, 0.0, removed["updateRatings"].(map[string]any)["rating"])
	assert.Equal(t, 1.0, removed["propagated"].(map[string]any)["modifiedCount"])

	b, err := env.db.FindBooking(context.Background(), roomID, "guest@hotel.io")
	require.NoError(t, err)
	require.NotNil(t, b.Rating)
	assert.Equal(t, 0.0, *b.Rating)
}

func TestAddReview_WithoutBooking(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 100})

	resp := env.do(t, http.MethodPost, "/rooms/"+roomID+"/review", map[string]any{
		"userEmail": "stranger@hotel.io", "rating": 1, "timestamp": "2024-01-01",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You cannot review this room without booking.", decodeJSON[map[string]string](t, resp)["message"])

	room, err := env.db.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Empty(t, room.Reviews)
}

func TestReviewBodyErrors(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 100})

	resp := env.do(t, http.MethodDelete, "/rooms/"+roomID+"/review", map[string]string{"userEmail": "a@x.io"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing data", decodeJSON[map[string]string](t, resp)["message"])

	resp = env.do(t, http.MethodPost, "/rooms/"+roomID+"/review", `{"userEmail":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON body", decodeJSON[map[string]string](t, resp)["message"])

	env.booking(t, roomID, "a@x.io")
	resp = env.do(t, http.MethodPost, "/rooms/"+roomID+"/review", map[string]any{"userEmail": "a@x.io", "rating": "abc"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "rating must be a number", decodeJSON[map[string]string](t, resp)["message"])
}

func TestAddReview_RatingRejectedBeforeMutation(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 100, Availability: true})
	env.booking(t, roomID, "guest@hotel.io")

	for _, body := range []string{
		`{"userEmail":"guest@hotel.io","rating":1e308,"timestamp":"t1"}`,
		`{"userEmail":"guest@hotel.io","rating":"NaN","timestamp":"t2"}`,
		`{"userEmail":"guest@hotel.io","rating":-2,"timestamp":"t3"}`,
		`{"userEmail":"guest@hotel.io","timestamp":"t4"}`,
	} {
		resp := env.do(t, http.MethodPost, "/rooms/"+roomID+"/review", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		resp.Body.Close()
	}

	room, err := env.db.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Empty(t, room.Reviews)

	resp := env.do(t, http.MethodPost, "/rooms/"+roomID+"/review", map[string]any{
		"userEmail": "guest@hotel.io", "rating": 4, "timestamp": "t5",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	room, err = env.db.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, room.Rating)
	assert.Len(t, room.Reviews, 1)
}

func TestAddReview_NoBookingCheckedBeforeRating(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 100})

	resp := env.do(t, http.MethodPost, "/rooms/"+roomID+"/review", map[string]any{
		"userEmail": "stranger@hotel.io", "timestamp": "2024-01-01",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You cannot review this room without booking.", decodeJSON[map[string]string](t, resp)["message"])
}

func TestRemoveReview_NumericTimestamp(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 100})
	env.booking(t, roomID, "g@h.io")

	resp := env.do(t, http.MethodPost, "/rooms/"+roomID+"/review", `{"userEmail":"g@h.io","rating":4,"timestamp":1714557600000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/rooms/"+roomID+"/review", `{"userEmail":"g@h.io","timestamp":1714557600000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	removed := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, 1.0, removed["result"].(map[string]any)["modifiedCount"])

	room, err := env.db.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Empty(t, room.Reviews)
	assert.Equal(t, 0.0, room.Rating)
}

func TestFilterRooms(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []float64{50, 100, 150, 200, 250} {
		env.room(t, &models.Room{Price: p})
	}

	resp := env.do(t, http.MethodGet, "/rooms/filter?min=100&max=200", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rooms := decodeJSON[[]models.Room](t, resp)
	require.Len(t, rooms, 3)
	for _, r := range rooms {
		assert.GreaterOrEqual(t, r.Price, 100.0)
		assert.LessOrEqual(t, r.Price, 200.0)
	}

	resp = env.do(t, http.MethodGet, "/rooms/filter", nil)
	assert.Len(t, decodeJSON[[]models.Room](t, resp), 5)

	resp = env.do(t, http.MethodGet, "/rooms/filter?min=abc&max=120px", nil)
	assert.Len(t, decodeJSON[[]models.Room](t, resp), 2)

	resp = env.do(t, http.MethodGet, "/rooms/filter?min=150&max=0", nil)
	assert.Len(t, decodeJSON[[]models.Room](t, resp), 3)
}

func TestFeatured(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 8; i++ {
		env.room(t, &models.Room{Price: 10, Availability: true, Rating: float64(i) / 2})
	}
	env.room(t, &models.Room{Price: 10, Availability: false, Rating: 5})

	resp := env.do(t, http.MethodGet, "/featured", nil)
	rooms := decodeJSON[[]models.Room](t, resp)
	require.Len(t, rooms, models.FeaturedRoomsLimit)
	for i, r := range rooms {
		assert.True(t, r.Availability)
		if i > 0 {
			assert.GreaterOrEqual(t, rooms[i-1].Rating, r.Rating)
		}
	}
	assert.Equal(t, 3.5, rooms[0].Rating)
}

func TestListRoomsAndMissingRoom(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/rooms", nil)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `[]`, string(body))

	resp = env.do(t, http.MethodGet, "/rooms/does-not-exist", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "null", strings.TrimSpace(string(body)))
}

func TestHomeReviews(t *testing.T) {
	env := newTestEnv(t)
	env.room(t, &models.Room{Reviews: []models.Review{
		{UserEmail: "a@x.io", Rating: 3, Timestamp: "2024-01-01T00:00:00Z"},
		{UserEmail: "b@x.io", Rating: 4, Timestamp: "someday"},
	}})
	env.room(t, &models.Room{Reviews: []models.Review{
		{UserEmail: "c@x.io", Rating: 5, Timestamp: "2024-03-01T00:00:00Z"},
	}})

	resp := env.do(t, http.MethodGet, "/home-reviews", nil)
	reviews := decodeJSON[[]models.Review](t, resp)
	require.Len(t, reviews, 3)
	assert.Equal(t, "c@x.io", reviews[0].UserEmail)
	assert.Equal(t, "a@x.io", reviews[1].UserEmail)
	assert.Equal(t, "b@x.io", reviews[2].UserEmail)
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 80, Availability: true})

	resp := env.do(t, http.MethodPost, "/bookings", map[string]any{
		"_id": "client-id", "roomId": roomID, "userEmail": "guest@hotel.io", "bookingDate": "2024-06-01", "guests": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inserted := decodeJSON[models.InsertResult](t, resp)
	assert.True(t, inserted.Acknowledged)
	assert.NotEqual(t, "client-id", inserted.InsertedID)

	resp = env.do(t, http.MethodPatch, "/rooms/"+roomID+"/availability", map[string]any{"availability": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), decodeJSON[models.UpdateResult](t, resp).ModifiedCount)

	resp = env.do(t, http.MethodPatch, "/bookings/"+roomID, map[string]string{"email": "guest@hotel.io", "newDate": "2024-07-01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), decodeJSON[models.UpdateResult](t, resp).ModifiedCount)

	resp = env.do(t, http.MethodGet, "/bookings/"+inserted.InsertedID+"/qrcode", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, _ := io.ReadAll(resp.Body)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	resp = env.do(t, http.MethodDelete, "/bookings/"+roomID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeJSON[map[string]map[string]any](t, resp)
	assert.Equal(t, 1.0, cancelled["result"]["deletedCount"])
	assert.Equal(t, 1.0, cancelled["updateAvailablity"]["modifiedCount"])

	room, err := env.db.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.True(t, room.Availability)
}

func TestCancelBooking_ReleasesRoomWithoutBooking(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 80, Availability: false})

	resp := env.do(t, http.MethodDelete, "/bookings/"+roomID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeJSON[map[string]map[string]any](t, resp)
	assert.Equal(t, 0.0, cancelled["result"]["deletedCount"])

	room, err := env.db.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.True(t, room.Availability)
}

func TestBookingValidation(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.room(t, &models.Room{Price: 80})

	resp := env.do(t, http.MethodPatch, "/rooms/"+roomID+"/availability", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/bookings/"+roomID, map[string]string{"email": "guest@hotel.io"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/bookings/unknown/qrcode", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "booking not found", decodeJSON[map[string]string](t, resp)["message"])
}

func TestMyBookings_IdentityGate(t *testing.T) {
	env := newTestEnv(t)
	env.booking(t, "r1", "guest@hotel.io")
	env.booking(t, "r2", "other@hotel.io")

	token, err := env.verifier.Sign("guest@hotel.io", time.Hour)
	require.NoError(t, err)

	t.Run("NoToken", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/my-bookings?email=guest@hotel.io", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "unauthorized access", decodeJSON[map[string]string](t, resp)["message"])
	})

	t.Run("BadToken", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/my-bookings?email=guest@hotel.io", nil, "Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Mismatch", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/my-bookings?email=other@hotel.io", nil, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "forbidden access", decodeJSON[map[string]string](t, resp)["message"])
	})

	t.Run("OK", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/my-bookings?email=guest@hotel.io", nil, "Authorization", "Bearer "+token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decodeJSON[[]models.Booking](t, resp)
		require.Len(t, list, 1)
		assert.Equal(t, "r1", list[0].RoomID)
	})
}

func TestRateLimit(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1}}
	server, _ := newTestHTTPServer(cfg, db, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp1, err := http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	defer resp1.Body.Close()
	assert.Equal(t, http.StatusOK, resp1.StatusCode)

	resp2, err := http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp2.StatusCode)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.ts.URL+"/rooms", http.NoBody)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestConcurrentReviews_SerializedPerRoom(t *testing.T) {
	db := newTestDB(t)
	server, _ := newTestHTTPServer(&config.APIConfig{}, db, repository.NewMemoryRoomLocker())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	roomID, err := db.InsertRoom(ctx, &models.Room{Price: 100, Availability: true})
	require.NoError(t, err)

	const n = 12
	ratings := make([]float64, n)
	for i := 0; i < n; i++ {
		ratings[i] = float64(i%5 + 1)
		_, err := db.InsertBooking(ctx, &models.Booking{RoomID: roomID, UserEmail: fmt.Sprintf("u%d@x.io", i)})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, _ := json.Marshal(map[string]any{
				"userEmail": fmt.Sprintf("u%d@x.io", i),
				"rating":    ratings[i],
				"timestamp": fmt.Sprintf("2024-01-01T00:00:%02dZ", i),
			})
			resp, err := http.Post(ts.URL+"/rooms/"+roomID+"/review", "application/json", bytes.NewReader(raw))
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(codes)
	for c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}

	room, err := db.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Len(t, room.Reviews, n)
	assert.Equal(t, service.AggregateRating(ratings), room.Rating)
}

func TestHTTPServer_ShutdownUnstarted(t *testing.T) {
	db := newTestDB(t)
	server, _ := newTestHTTPServer(&config.APIConfig{}, db, nil)
	assert.NoError(t, server.Shutdown(context.Background()))
}
