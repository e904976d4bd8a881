package scheduling

import (
	"time"

	"github.com/wolfman30/vethome-platform/internal/notify"
)

type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignClosed  CampaignStatus = "closed"
)

// TaskState tracks one appointment's notification through drafting and delivery.
type TaskState string

const (
	TaskDrafted     TaskState = "drafted"
	TaskFallback    TaskState = "fallback"
	TaskFailed      TaskState = "failed"
	TaskQueued      TaskState = "queued"
	TaskSending     TaskState = "sending"
	TaskSent        TaskState = "sent"
	TaskUndelivered TaskState = "undelivered"
)

// Deliverable reports whether the task has a message ready to send.
func (s TaskState) Deliverable() bool {
	return s == TaskDrafted || s == TaskFallback
}

type Task struct {
	AppointmentID string           `json:"appointment_id"`
	Recipient     notify.Recipient `json:"recipient"`
	Message       string           `json:"message"`
	State         TaskState        `json:"state"`
	Channel       notify.Channel   `json:"channel,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Campaign is a batch of appointment notifications keyed by appointment id.
type Campaign struct {
	ID        string           `json:"id"`
	StartDate string           `json:"start_date"`
	EndDate   string           `json:"end_date"`
	Status    CampaignStatus   `json:"status"`
	Tasks     map[string]*Task `json:"tasks"`
	CreatedAt time.Time        `json:"created_at"`
	ClosedAt  *time.Time       `json:"closed_at,omitempty"`
}

// Counts returns the number of tasks in each state.
func (c *Campaign) Counts() map[TaskState]int {
	out := make(map[TaskState]int)
	for _, t := range c.Tasks {
		out[t.State]++
	}
	return out
}

func cloneCampaign(c *Campaign) *Campaign {
	cp := *c
	cp.Tasks = make(map[string]*Task, len(c.Tasks))
	for id, t := range c.Tasks {
		task := *t
		cp.Tasks[id] = &task
	}
	if c.ClosedAt != nil {
		at := *c.ClosedAt
		cp.ClosedAt = &at
	}
	return &cp
}
