package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"hotelhub/internal/events"
	"hotelhub/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	mu       sync.Mutex
	rows     [][]interface{}
	failures int
	calls    int
}

func (f *fakeLedger) AppendRow(_ context.Context, values []interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("sheets unavailable")
	}
	f.rows = append(f.rows, values)
	return nil
}

func (f *fakeLedger) snapshot() ([][]interface{}, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]interface{}(nil), f.rows...), f.calls
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func newTestWorker(t *testing.T, ledger *fakeLedger, rdb *redis.Client) *LedgerWorker {
	t.Helper()
	logger := zerolog.Nop()
	w := NewLedgerWorker(ledger, rdb, fastRetry(), &logger)
	w.pollInterval = 20 * time.Millisecond
	return w
}

func runWorker(t *testing.T, w *LedgerWorker) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	return cancel, done
}

func reviewPayload(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(events.ReviewEventPayload{
		RoomID: "r1", UserEmail: "u@x.io", Timestamp: "t1", Rating: 4, RoomRating: 4.5,
	})
	require.NoError(t, err)
	return raw
}

func TestLedgerRow(t *testing.T) {
	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	row, err := LedgerRow(&LedgerTask{EventType: models.EventReviewAdded, Payload: reviewPayload(t), CreatedAt: created})
	require.NoError(t, err)
	require.Len(t, row, len(LedgerHeader))
	assert.Equal(t, "2024-06-01T10:00:00Z", row[0])
	assert.Equal(t, models.EventReviewAdded, row[1])
	assert.Equal(t, "r1", row[2])
	assert.Equal(t, "u@x.io", row[3])
	assert.Equal(t, "t1", row[6])
	assert.Equal(t, 4.0, row[7])
	assert.Equal(t, 4.5, row[8])

	booking, _ := json.Marshal(events.BookingEventPayload{BookingID: "b1", RoomID: "r2", BookingDate: "2024-07-01"})
	row, err = LedgerRow(&LedgerTask{EventType: models.EventBookingCreated, Payload: booking, CreatedAt: created})
	require.NoError(t, err)
	assert.Equal(t, "b1", row[4])
	assert.Equal(t, "2024-07-01", row[5])
	assert.Equal(t, "", row[7])
	assert.Equal(t, "", row[8])

	_, err = LedgerRow(&LedgerTask{EventType: "x", Payload: json.RawMessage(`{bad`)})
	assert.Error(t, err)
}

func TestLedgerWorker_MemoryQueue(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWorker(t, ledger, nil)

	require.NoError(t, w.Enqueue(context.Background(), models.EventReviewAdded, reviewPayload(t)))
	assert.Error(t, w.Enqueue(context.Background(), "", nil))

	cancel, done := runWorker(t, w)
	defer func() { cancel(); <-done }()

	assert.Eventually(t, func() bool {
		rows, _ := ledger.snapshot()
		return len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLedgerWorker_RetriesThenSucceeds(t *testing.T) {
	ledger := &fakeLedger{failures: 2}
	w := newTestWorker(t, ledger, nil)
	require.NoError(t, w.Enqueue(context.Background(), models.EventReviewAdded, reviewPayload(t)))

	cancel, done := runWorker(t, w)
	defer func() { cancel(); <-done }()

	assert.Eventually(t, func() bool {
		rows, calls := ledger.snapshot()
		return len(rows) == 1 && calls == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLedgerWorker_RedisQueueAndDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ledger := &fakeLedger{failures: 3}
	w := newTestWorker(t, ledger, rdb)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, models.EventReviewRemoved, reviewPayload(t)))
	n, err := rdb.LLen(ctx, ledgerQueueKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, w.queue, 0)

	cancel, done := runWorker(t, w)
	defer func() { cancel(); <-done }()

	assert.Eventually(t, func() bool {
		n, _ := rdb.LLen(ctx, ledgerDeadLetterKey).Result()
		return n == 1
	}, 3*time.Second, 20*time.Millisecond)

	raw, err := rdb.LIndex(ctx, ledgerDeadLetterKey, 0).Result()
	require.NoError(t, err)
	var task LedgerTask
	require.NoError(t, json.Unmarshal([]byte(raw), &task))
	assert.Equal(t, models.EventReviewRemoved, task.EventType)

	rows, calls := ledger.snapshot()
	assert.Empty(t, rows)
	assert.Equal(t, 3, calls)
}

func TestLedgerWorker_RedisDownFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	w := newTestWorker(t, &fakeLedger{}, rdb)
	require.NoError(t, w.Enqueue(context.Background(), models.EventBookingCreated, []byte(`{"room_id":"r1"}`)))
	assert.Len(t, w.queue, 1)
}

func TestLedgerWorker_QueueFull(t *testing.T) {
	w := newTestWorker(t, &fakeLedger{}, nil)
	w.queue = make(chan LedgerTask, 1)

	require.NoError(t, w.Enqueue(context.Background(), models.EventBookingCreated, nil))
	assert.Error(t, w.Enqueue(context.Background(), models.EventBookingCreated, nil))
}

func TestLedgerWorker_AttachAndDrain(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWorker(t, ledger, nil)
	bus := events.NewEventBus()
	w.Attach(bus)

	require.NoError(t, bus.PublishJSON(models.EventBookingCancelled, events.BookingEventPayload{RoomID: "r9"}))
	require.NoError(t, bus.PublishJSON("unrelated", map[string]string{}))
	assert.Len(t, w.queue, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Start(ctx)

	rows, _ := ledger.snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, models.EventBookingCancelled, rows[0][1])
	assert.Equal(t, "r9", rows[0][2])
}
