package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/vethome-platform/internal/notify"
	"github.com/wolfman30/vethome-platform/internal/observability/metrics"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// Deliverer sends one notification; notify.Dispatcher implements it.
type Deliverer interface {
	Deliver(ctx context.Context, n notify.Notification) (notify.Channel, error)
}

// DeliveryWorker consumes campaign delivery jobs and records the outcome on
// the campaign task.
type DeliveryWorker struct {
	queue     JobQueue
	store     CampaignStore
	deliverer Deliverer
	metrics   *metrics.CampaignMetrics
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait, capped at the SQS maximum.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

func NewDeliveryWorker(queue JobQueue, store CampaignStore, deliverer Deliverer, m *metrics.CampaignMetrics, logger *logging.Logger, opts ...WorkerOption) *DeliveryWorker {
	if queue == nil || store == nil || deliverer == nil {
		panic("scheduling: delivery worker requires queue, store and deliverer")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DeliveryWorker{
		queue:     queue,
		store:     store,
		deliverer: deliverer,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the consumer goroutines. They stop when ctx is cancelled.
func (w *DeliveryWorker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all consumer goroutines exit.
func (w *DeliveryWorker) Wait() {
	w.wg.Wait()
}

func (w *DeliveryWorker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("delivery worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			w.logger.Debug("delivery worker stopping", "worker_id", workerID)
			return
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive delivery jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *DeliveryWorker) handleMessage(ctx context.Context, msg queueMessage) {
	var job deliveryJob
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode delivery job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	if _, err := ClaimTask(ctx, w.store, job.CampaignID, job.AppointmentID); err != nil {
		if errors.Is(err, ErrTaskNotQueued) || errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrCampaignNotFound) {
			w.logger.Info("delivery job skipped", "campaign_id", job.CampaignID, "appointment_id", job.AppointmentID, "reason", err)
			w.deleteMessage(msg.ReceiptHandle)
			return
		}
		// left on the queue for redelivery
		w.logger.Error("failed to claim campaign task", "error", err, "campaign_id", job.CampaignID, "appointment_id", job.AppointmentID)
		return
	}

	channel, err := w.deliverer.Deliver(ctx, notify.Notification{
		To:       job.Recipient,
		Subject:  "Recordatorio de cita",
		Body:     job.Message,
		Category: "appointment_reminder",
	})
	if err != nil && ctx.Err() != nil {
		w.releaseTask(job)
		return
	}

	state := TaskSent
	errText := ""
	if err != nil {
		state = TaskUndelivered
		errText = err.Error()
		w.logger.Warn("campaign delivery failed", "campaign_id", job.CampaignID, "appointment_id", job.AppointmentID, "error", err)
	}
	w.metrics.ObserveTask(string(state), string(channel))

	if _, uerr := UpdateTask(context.WithoutCancel(ctx), w.store, job.CampaignID, job.AppointmentID, func(t *Task) {
		t.State = state
		t.Channel = channel
		t.Error = errText
	}); uerr != nil {
		w.logger.Error("failed to record delivery outcome", "error", uerr, "campaign_id", job.CampaignID, "appointment_id", job.AppointmentID)
	}
	w.deleteMessage(msg.ReceiptHandle)
}

// releaseTask returns a claimed task to queued so the redelivered job can
// send it.
func (w *DeliveryWorker) releaseTask(job deliveryJob) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if _, err := UpdateTask(ctx, w.store, job.CampaignID, job.AppointmentID, func(t *Task) {
		if t.State == TaskSending {
			t.State = TaskQueued
		}
	}); err != nil {
		w.logger.Error("failed to release campaign task", "error", err, "campaign_id", job.CampaignID, "appointment_id", job.AppointmentID)
	}
}

func (w *DeliveryWorker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete delivery job", "error", err)
	}
}
