package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending notification emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Mailer processes TaskTypeSendEmail tasks.
type Mailer struct {
	logger *slog.Logger
}

// NewMailer constructs a Mailer.
func NewMailer(logger *slog.Logger) *Mailer {
	return &Mailer{logger: logger}
}

// HandleSendEmail delivers a queued email. Delivery currently logs the
// message; the SMTP transport plugs in here.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	m.logger.Info("send email",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}
