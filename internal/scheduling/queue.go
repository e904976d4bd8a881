package scheduling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/vethome-platform/internal/notify"
)

// JobQueue carries delivery jobs between the dispatcher and the worker.
type JobQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// deliveryJob is one campaign task on the wire.
type deliveryJob struct {
	ID            string           `json:"id"`
	CampaignID    string           `json:"campaign_id"`
	AppointmentID string           `json:"appointment_id"`
	Recipient     notify.Recipient `json:"recipient"`
	Message       string           `json:"message"`
}

func encodeJob(job deliveryJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("scheduling: encode delivery job: %w", err)
	}
	return string(body), nil
}
