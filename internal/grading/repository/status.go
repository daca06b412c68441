package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"quizsys/internal/common/cache"
	"quizsys/internal/grading/model"
	appErr "quizsys/pkg/errors"
)

const (
	statusKeyPrefix  = "grading:status:"
	defaultStatusTTL = 24 * time.Hour
)

// StatusRepository keeps the grading progress of question submissions in Redis.
type StatusRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

// Get returns status by question submission id.
func (r *StatusRepository) Get(ctx context.Context, questionSubmissionID int64) (model.GradeStatus, error) {
	if questionSubmissionID <= 0 {
		return model.GradeStatus{}, appErr.ValidationError("question_submission_id", "must be positive")
	}
	if r.cache == nil {
		return model.GradeStatus{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKey(questionSubmissionID))
	if err != nil {
		return model.GradeStatus{}, appErr.Wrapf(err, appErr.CacheError, "read status failed")
	}
	if val == "" {
		return model.GradeStatus{}, appErr.New(appErr.NotFound).WithMessage("grading status not found")
	}
	var status model.GradeStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return model.GradeStatus{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return status, nil
}

// Save persists status.
func (r *StatusRepository) Save(ctx context.Context, status model.GradeStatus) error {
	if status.QuestionSubmissionID <= 0 {
		return appErr.ValidationError("question_submission_id", "must be positive")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if status.UpdatedAt == 0 {
		status.UpdatedAt = time.Now().Unix()
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKey(status.QuestionSubmissionID), string(data), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}

func statusKey(questionSubmissionID int64) string {
	return statusKeyPrefix + strconv.FormatInt(questionSubmissionID, 10)
}
