package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"quizsys/internal/common/mq"
	"quizsys/internal/grading/model"
	"quizsys/internal/grading/repository"
	appErr "quizsys/pkg/errors"
	"quizsys/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Enqueuer publishes grading jobs.
type Enqueuer struct {
	producer   mq.Producer
	topic      string
	statusRepo *repository.StatusRepository
}

func NewEnqueuer(producer mq.Producer, topic string, statusRepo *repository.StatusRepository) (*Enqueuer, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &Enqueuer{producer: producer, topic: topic, statusRepo: statusRepo}, nil
}

// Enqueue schedules one question submission for grading.
// Only the id travels; the consumer re-reads everything else.
func (e *Enqueuer) Enqueue(ctx context.Context, questionSubmissionID int64) error {
	if questionSubmissionID <= 0 {
		return appErr.ValidationError("question_submission_id", "must be positive")
	}
	body, err := json.Marshal(model.GradeMessage{QuestionSubmissionID: questionSubmissionID})
	if err != nil {
		return appErr.Wrapf(err, appErr.GradeMessageInvalid, "encode grading message failed")
	}
	msg := mq.NewMessage(body)
	msg.ID = uuid.NewString()
	msg.Key = strconv.FormatInt(questionSubmissionID, 10)

	// Pending is written first so it can never overwrite a state set by a fast consumer.
	e.saveStatus(ctx, model.GradeStatus{QuestionSubmissionID: questionSubmissionID, State: model.GradeStatePending})
	if err := e.producer.Publish(ctx, e.topic, msg); err != nil {
		wrapped := appErr.Wrapf(err, appErr.GradeQueueUnavailable, "publish grading message failed")
		e.saveStatus(ctx, model.GradeStatus{
			QuestionSubmissionID: questionSubmissionID,
			State:                model.GradeStateFailed,
			ErrorCode:            int(appErr.GradeQueueUnavailable),
			ErrorMessage:         wrapped.Error(),
		})
		return wrapped
	}
	return nil
}

func (e *Enqueuer) saveStatus(ctx context.Context, status model.GradeStatus) {
	if e.statusRepo == nil {
		return
	}
	if err := e.statusRepo.Save(ctx, status); err != nil {
		logger.Warn(ctx, "update grading status failed",
			zap.Int64("question_submission_id", status.QuestionSubmissionID), zap.Error(err))
	}
}
