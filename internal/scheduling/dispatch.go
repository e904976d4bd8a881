package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/wolfman30/vethome-platform/internal/observability/metrics"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

const DefaultSendDelay = 2 * time.Second

// Dispatcher sends a confirmed campaign's queued tasks and records each
// task's outcome through the campaign store.
type Dispatcher interface {
	Dispatch(ctx context.Context, c *Campaign) error
}

// SimulatedDispatcher waits the configured delay and marks every queued task
// sent. Nothing leaves the process.
type SimulatedDispatcher struct {
	store   CampaignStore
	delay   time.Duration
	metrics *metrics.CampaignMetrics
}

func NewSimulatedDispatcher(store CampaignStore, delay time.Duration, m *metrics.CampaignMetrics) *SimulatedDispatcher {
	if delay < 0 {
		delay = 0
	}
	return &SimulatedDispatcher{store: store, delay: delay, metrics: m}
}

func (d *SimulatedDispatcher) Dispatch(ctx context.Context, c *Campaign) error {
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	_, err := d.store.Update(ctx, c.ID, func(c *Campaign) error {
		for _, t := range c.Tasks {
			if t.State == TaskQueued {
				t.State = TaskSent
				d.metrics.ObserveTask(string(TaskSent), "")
			}
		}
		return nil
	})
	return err
}

// QueueDispatcher puts one delivery job per queued task on the queue. A
// DeliveryWorker sends them and records sent or undelivered.
type QueueDispatcher struct {
	queue   JobQueue
	store   CampaignStore
	metrics *metrics.CampaignMetrics
	logger  *logging.Logger
}

func NewQueueDispatcher(queue JobQueue, store CampaignStore, m *metrics.CampaignMetrics, logger *logging.Logger) *QueueDispatcher {
	if queue == nil {
		panic("scheduling: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QueueDispatcher{queue: queue, store: store, metrics: m, logger: logger}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, c *Campaign) error {
	ids := make([]string, 0, len(c.Tasks))
	for id, t := range c.Tasks {
		if t.State == TaskQueued {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := c.Tasks[id]
		body, err := encodeJob(deliveryJob{
			CampaignID:    c.ID,
			AppointmentID: id,
			Recipient:     t.Recipient,
			Message:       t.Message,
		})
		if err == nil {
			err = d.queue.Send(ctx, body)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("campaign task not enqueued", "campaign_id", c.ID, "appointment_id", id, "error", err)
		d.metrics.ObserveTask(string(TaskUndelivered), "")
		if _, uerr := UpdateTask(ctx, d.store, c.ID, id, func(t *Task) {
			t.State = TaskUndelivered
			t.Error = err.Error()
		}); uerr != nil {
			return uerr
		}
	}
	return nil
}
