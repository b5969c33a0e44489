package service

import (
	"context"
	"time"

	apperrors "github.com/portal-hub/internal/errors"
	"github.com/portal-hub/internal/job"
	"github.com/portal-hub/internal/logging"
	"github.com/portal-hub/internal/metrics"
	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/retry"
	"github.com/portal-hub/internal/storage"
	"github.com/portal-hub/internal/types"
)

// ReplyScheduler accepts delayed reply jobs
type ReplyScheduler interface {
	Enqueue(j *job.Job) error
}

// ReplyRecorder records reply outcomes
type ReplyRecorder interface {
	RecordAssistantReply(outcome string)
}

// AssistantConfig configures AssistantService
type AssistantConfig struct {
	ReplyDelay time.Duration
	Retry      *retry.RetryConfig
}

// AssistantService stores user messages and schedules the assistant's replies
type AssistantService struct {
	messages  storage.MessageStore
	responder Responder
	scheduler ReplyScheduler
	recorder  ReplyRecorder
	delay     time.Duration
	retry     *retry.RetryConfig
	logger    *logging.Logger
	now       func() time.Time
}

// NewAssistantService creates an assistant service. recorder may be nil.
func NewAssistantService(
	messages storage.MessageStore,
	responder Responder,
	scheduler ReplyScheduler,
	recorder ReplyRecorder,
	cfg AssistantConfig,
	logger *logging.Logger,
) *AssistantService {
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}
	if retryCfg.ShouldRetry == nil {
		withPolicy := *retryCfg
		withPolicy.ShouldRetry = apperrors.IsRetryable
		retryCfg = &withPolicy
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &AssistantService{
		messages:  messages,
		responder: responder,
		scheduler: scheduler,
		recorder:  recorder,
		delay:     cfg.ReplyDelay,
		retry:     retryCfg,
		logger:    logger,
		now:       time.Now,
	}
}

// PostMessage stores the user's message stamped with the current time and
// schedules an assistant reply after the configured delay. The stored user
// message is returned even when the reply cannot be scheduled.
func (s *AssistantService) PostMessage(ctx context.Context, userID int64, content string) (*models.AssistantMessage, error) {
	input := models.NewMessage{
		UserID:    userID,
		Content:   content,
		Sender:    types.SenderUser,
		Timestamp: s.now().UnixMilli(),
	}
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}

	msg := s.messages.CreateMessage(input)

	reply := &job.Job{
		Name:  "assistant-reply",
		RunAt: s.now().Add(s.delay),
		Run: func(ctx context.Context) error {
			return s.reply(ctx, userID, content)
		},
	}
	if err := s.scheduler.Enqueue(reply); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("user_id", userID).Warn("Assistant reply not scheduled")
		s.record(metrics.ReplyDropped)
	}

	return msg, nil
}

// reply asks the responder for an answer, retrying with backoff, and stores it.
// A reply whose context is cancelled by queue shutdown is dropped, not stored.
func (s *AssistantService) reply(ctx context.Context, userID int64, content string) error {
	if err := ctx.Err(); err != nil {
		s.record(metrics.ReplyDropped)
		return apperrors.NewInternalError("assistant reply cancelled", err)
	}

	var answer string
	result := retry.WithExponentialBackoff(logging.WithLogger(ctx, s.logger), s.retry, func(ctx context.Context, attempt int) error {
		text, err := s.responder.Reply(ctx, content)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return apperrors.NewInternalError("assistant reply cancelled", ctxErr)
			}
			return apperrors.NewResponderError(err)
		}
		answer = text
		return nil
	})
	if err := result.Err(); err != nil {
		if ctx.Err() != nil {
			s.record(metrics.ReplyDropped)
		} else {
			s.record(metrics.ReplyFailed)
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		s.record(metrics.ReplyDropped)
		return apperrors.NewInternalError("assistant reply cancelled", err)
	}

	stored := s.messages.CreateMessage(models.NewMessage{
		UserID:    userID,
		Content:   answer,
		Sender:    types.SenderAI,
		Timestamp: s.now().UnixMilli(),
	})
	s.record(metrics.ReplyStored)

	s.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"message_id": stored.ID,
		"attempts":   result.Attempts,
	}).Debug("Assistant reply stored")
	return nil
}

// ListMessages returns the user's conversation ordered by timestamp
func (s *AssistantService) ListMessages(ctx context.Context, userID int64) ([]*models.AssistantMessage, error) {
	return s.messages.ListMessages(userID), nil
}

func (s *AssistantService) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordAssistantReply(outcome)
	}
}
