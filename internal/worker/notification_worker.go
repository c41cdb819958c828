package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentdesk/internal/config"
	"rentdesk/internal/metrics"
	"rentdesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sender delivers one notification to its recipient.
type Sender interface {
	Send(ctx context.Context, task models.NotificationTask) error
}

// NotificationStore is the durable outbox behind the worker.
type NotificationStore interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetNotificationTask(ctx context.Context, id int64) (*models.NotificationTask, error)
	GetPendingNotificationTasks(ctx context.Context, now time.Time, limit int) ([]models.NotificationTask, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status string, retryCount int, lastError string, nextRetryAt *time.Time) error
}

// NotificationWorker persists notifications to the outbox and delivers them
// through redis or an in-memory queue, falling back to polling the outbox.
type NotificationWorker struct {
	store         NotificationStore
	sender        Sender
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan int64
	redisQueueKey string
	deadLetterKey string
	redisBlock    time.Duration
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewNotificationWorker(store NotificationStore, sender Sender, redisClient *redis.Client, cfg config.NotificationsConfig, logger *zerolog.Logger) *NotificationWorker {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 2 * time.Second
	}

	return &NotificationWorker{
		store:         store,
		sender:        sender,
		redis:         redisClient,
		retryPolicy:   newRetryPolicy(cfg),
		queue:         make(chan int64, models.NotificationQueueSize),
		redisQueueKey: "notifications:queue",
		deadLetterKey: "notifications:deadletter",
		redisBlock:    time.Second,
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        logger,
	}
}

// Notify persists a notification task and schedules it for delivery.
func (w *NotificationWorker) Notify(ctx context.Context, userID int64, eventType, bookingID string) error {
	if eventType == "" {
		return errors.New("event type is required")
	}
	if bookingID == "" {
		return errors.New("booking id is required")
	}

	task := models.NotificationTask{
		UserID:    userID,
		EventType: eventType,
		BookingID: bookingID,
		Status:    models.TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.store.CreateNotificationTask(ctx, &task); err != nil {
		return fmt.Errorf("persist notification task: %w", err)
	}

	if w.redis != nil {
		if err := w.redis.LPush(ctx, w.redisQueueKey, task.ID).Err(); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task.ID:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notification worker started")
	defer w.logger.Info().Msg("notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.ProcessNext(ctx) {
			continue
		}

		if w.ProcessPending(ctx) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessNext handles one queued task and reports whether there was one.
func (w *NotificationWorker) ProcessNext(ctx context.Context) bool {
	if id, ok := w.tryLocalQueue(); ok {
		w.processTask(ctx, id)
		return true
	}
	if id, ok := w.tryRedis(ctx); ok {
		w.processTask(ctx, id)
		return true
	}
	return false
}

// ProcessPending delivers one batch of due outbox tasks and returns the batch size.
func (w *NotificationWorker) ProcessPending(ctx context.Context) int {
	tasks, err := w.store.GetPendingNotificationTasks(ctx, time.Now().UTC(), w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch pending notification tasks")
		return 0
	}
	for i := range tasks {
		w.deliver(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *NotificationWorker) tryLocalQueue() (int64, bool) {
	select {
	case id := <-w.queue:
		return id, true
	default:
		return 0, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (int64, bool) {
	if w.redis == nil {
		return 0, false
	}
	res, err := w.redis.BRPop(ctx, w.redisBlock, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return 0, false
	}
	if len(res) != 2 {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal([]byte(res[1]), &id); err != nil {
		w.logger.Warn().Err(err).Str("value", res[1]).Msg("decode redis task id")
		return 0, false
	}
	return id, true
}

// processTask reloads a queued task so that tasks already handled by polling are skipped.
func (w *NotificationWorker) processTask(ctx context.Context, id int64) {
	task, err := w.store.GetNotificationTask(ctx, id)
	if err != nil {
		w.logger.Warn().Err(err).Int64("task_id", id).Msg("load notification task")
		return
	}
	switch task.Status {
	case models.TaskStatusPending:
	case models.TaskStatusRetry:
		if task.NextRetryAt != nil && task.NextRetryAt.After(time.Now()) {
			return
		}
	default:
		return
	}
	w.deliver(ctx, task)
}

func (w *NotificationWorker) deliver(ctx context.Context, task *models.NotificationTask) {
	if err := w.sender.Send(ctx, *task); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncNotification("sent")
	if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusCompleted, task.RetryCount, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification completed")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		metrics.IncNotification("failed")
		w.logger.Error().Err(cause).
			Int64("task_id", task.ID).
			Str("booking_id", task.BookingID).
			Int("attempts", attempt).
			Msg("notification failed permanently")
		if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusFailed, attempt, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	metrics.IncNotification("retry")
	nextTime := time.Now().UTC().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusRetry, attempt, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification retry")
	}
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}

// LogSender writes notifications to the log; transport is provided elsewhere.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, task models.NotificationTask) error {
	s.logger.Info().
		Int64("user_id", task.UserID).
		Str("event_type", task.EventType).
		Str("booking_id", task.BookingID).
		Msg("notification")
	return nil
}
