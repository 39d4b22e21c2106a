package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/keystone-auth/keystone/internal/users"
	"github.com/keystone-auth/keystone/jobs"
)

// EventSink receives lifecycle notifications from the authentication flow.
// Sink failures never fail the triggering request; implementations must not
// block beyond a single enqueue.
type EventSink interface {
	OnUserRegistered(ctx context.Context, user *users.User)
	OnPasswordResetRequested(ctx context.Context, user *users.User, token string)
	OnVerificationRequested(ctx context.Context, user *users.User, token string)
}

// MailSink enqueues notification emails through Asynq. The worker binary
// drains the queue.
type MailSink struct {
	client  *asynq.Client
	logger  *slog.Logger
	baseURL string
}

// NewMailSink constructs a MailSink. baseURL is the public address embedded
// in reset and verification links.
func NewMailSink(client *asynq.Client, logger *slog.Logger, baseURL string) *MailSink {
	return &MailSink{client: client, logger: logger, baseURL: baseURL}
}

// OnUserRegistered sends a welcome email.
func (s *MailSink) OnUserRegistered(ctx context.Context, user *users.User) {
	s.enqueue(ctx, jobs.SendEmailPayload{
		To:      user.Email,
		Subject: "Welcome to Keystone",
		Body:    "Your account has been created.",
	})
}

// OnPasswordResetRequested sends the reset link.
func (s *MailSink) OnPasswordResetRequested(ctx context.Context, user *users.User, token string) {
	s.enqueue(ctx, jobs.SendEmailPayload{
		To:      user.Email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token),
	})
}

// OnVerificationRequested sends the verification link.
func (s *MailSink) OnVerificationRequested(ctx context.Context, user *users.User, token string) {
	s.enqueue(ctx, jobs.SendEmailPayload{
		To:      user.Email,
		Subject: "Verify your email address",
		Body:    fmt.Sprintf("%s/verify?token=%s", s.baseURL, token),
	})
}

func (s *MailSink) enqueue(ctx context.Context, payload jobs.SendEmailPayload) {
	task, err := jobs.NewSendEmailTask(payload)
	if err != nil {
		s.logger.Error("build email task", slog.Any("error", err))
		return
	}
	if _, err := s.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
		s.logger.Error("enqueue email task", slog.String("to", payload.To), slog.Any("error", err))
	}
}

// LogSink writes lifecycle events to the logger. Used when no queue is
// configured and as the default in tests.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// OnUserRegistered logs the registration.
func (s *LogSink) OnUserRegistered(_ context.Context, user *users.User) {
	s.logger.Info("user registered", slog.String("user_id", user.ID.String()))
}

// OnPasswordResetRequested logs the reset request. The token itself is not
// logged.
func (s *LogSink) OnPasswordResetRequested(_ context.Context, user *users.User, _ string) {
	s.logger.Info("password reset requested", slog.String("user_id", user.ID.String()))
}

// OnVerificationRequested logs the verification request.
func (s *LogSink) OnVerificationRequested(_ context.Context, user *users.User, _ string) {
	s.logger.Info("verification requested", slog.String("user_id", user.ID.String()))
}

var (
	_ EventSink = (*MailSink)(nil)
	_ EventSink = (*LogSink)(nil)
)
