package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hotelhub/internal/domain"
	"hotelhub/internal/events"
	"hotelhub/internal/metrics"
	"hotelhub/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ledgerQueueKey      = "ledger:queue"
	ledgerDeadLetterKey = "ledger:deadletter"
)

// LedgerHeader is the first row of the ledger sheet.
var LedgerHeader = []interface{}{
	"Recorded At", "Event", "Room ID", "User Email", "Booking ID", "Booking Date", "Review Timestamp", "Rating", "Room Rating",
}

// LedgerTask is one event waiting to be written to the ledger.
type LedgerTask struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type ledgerPayload struct {
	RoomID      string   `json:"room_id"`
	UserEmail   string   `json:"user_email"`
	BookingID   string   `json:"booking_id"`
	BookingDate string   `json:"booking_date"`
	Timestamp   string   `json:"timestamp"`
	Rating      *float64 `json:"rating"`
	RoomRating  *float64 `json:"room_rating"`
}

// LedgerWorker writes domain events to the booking ledger. Tasks go to a
// redis list when one is configured and to an in-memory queue otherwise.
// Failed writes are retried with backoff and then parked in a dead letter
// list.
type LedgerWorker struct {
	ledger        domain.LedgerWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan LedgerTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

func NewLedgerWorker(ledger domain.LedgerWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *LedgerWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LedgerWorker{
		ledger:        ledger,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan LedgerTask, models.WorkerQueueSize),
		redisQueueKey: ledgerQueueKey,
		deadLetterKey: ledgerDeadLetterKey,
		pollInterval:  time.Second,
		logger:        logger,
	}
}

// Attach forwards every booking and review event to the ledger.
func (w *LedgerWorker) Attach(bus *events.EventBus) {
	bus.Subscribe(func(ev *events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return w.Enqueue(ctx, ev.Type, ev.Payload)
	},
		models.EventBookingCreated,
		models.EventBookingCancelled,
		models.EventBookingRescheduled,
		models.EventReviewAdded,
		models.EventReviewRemoved,
	)
}

// Enqueue schedules an event for the ledger.
func (w *LedgerWorker) Enqueue(ctx context.Context, eventType string, payload []byte) error {
	if eventType == "" {
		return errors.New("event type is required")
	}
	task := LedgerTask{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		metrics.IncLedger("dropped")
		return fmt.Errorf("ledger queue full, task %s dropped", task.ID)
	}
}

// Start processes tasks until ctx is done, then drains the memory queue.
func (w *LedgerWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("ledger worker started")
	defer w.logger.Info().Msg("ledger worker stopped")

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		select {
		case <-ctx.Done():
		case t := <-w.queue:
			w.processTask(ctx, &t)
		case <-time.After(w.pollInterval):
		}
	}
}

// drain gives queued tasks one attempt each within a short deadline.
func (w *LedgerWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		t, ok := w.tryLocalQueue()
		if !ok {
			return
		}
		if err := w.write(ctx, &t); err != nil {
			w.logger.Warn().Err(err).Str("task_id", t.ID).Msg("ledger task lost on shutdown")
			metrics.IncLedger("failed")
		}
	}
}

func (w *LedgerWorker) tryLocalQueue() (LedgerTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return LedgerTask{}, false
	}
}

func (w *LedgerWorker) tryRedis(ctx context.Context) (LedgerTask, bool) {
	if w.redis == nil {
		return LedgerTask{}, false
	}
	res, err := w.redis.BRPop(ctx, w.pollInterval, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return LedgerTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return LedgerTask{}, false
	}
	if len(res) != 2 {
		return LedgerTask{}, false
	}
	var task LedgerTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return LedgerTask{}, false
	}
	return task, true
}

func (w *LedgerWorker) processTask(ctx context.Context, task *LedgerTask) {
	for attempt := 1; ; attempt++ {
		err := w.write(ctx, task)
		if err == nil {
			metrics.IncLedger("ok")
			return
		}
		var perm permanentError
		if errors.As(err, &perm) || attempt >= w.retryPolicy.MaxRetries {
			w.logger.Error().Err(err).Str("task_id", task.ID).Int("attempts", attempt).Msg("ledger task failed")
			metrics.IncLedger("failed")
			w.pushDeadLetter(ctx, task)
			return
		}

		metrics.IncLedger("retry")
		w.logger.Warn().Err(err).Str("task_id", task.ID).Int("attempt", attempt).Msg("ledger write failed, retrying")
		if w.retryPolicy.Wait(ctx, attempt) != nil {
			w.logger.Warn().Str("task_id", task.ID).Msg("ledger retry interrupted by shutdown")
			w.pushDeadLetter(context.Background(), task)
			return
		}
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func (w *LedgerWorker) write(ctx context.Context, task *LedgerTask) error {
	row, err := LedgerRow(task)
	if err != nil {
		return permanentError{err}
	}
	return w.ledger.AppendRow(ctx, row)
}

// LedgerRow renders a task as a sheet row in LedgerHeader order.
func LedgerRow(task *LedgerTask) ([]interface{}, error) {
	var p ledgerPayload
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return []interface{}{
		task.CreatedAt.UTC().Format(time.RFC3339),
		task.EventType,
		p.RoomID,
		p.UserEmail,
		p.BookingID,
		p.BookingDate,
		p.Timestamp,
		optional(p.Rating),
		optional(p.RoomRating),
	}, nil
}

func optional(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func (w *LedgerWorker) pushRedis(ctx context.Context, key string, task LedgerTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *LedgerWorker) pushDeadLetter(ctx context.Context, task *LedgerTask) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("deadletter push failed")
	}
}
