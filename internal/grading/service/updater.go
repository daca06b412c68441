package service

import (
	"context"
	"fmt"
	"time"

	"quizsys/internal/common/db"
	"quizsys/internal/grading/model"
	"quizsys/internal/grading/notify"
	"quizsys/internal/grading/repository"
	appErr "quizsys/pkg/errors"
	"quizsys/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultNotifyTimeout = 5 * time.Second

// QuizReader loads quiz settings outside the aggregate lock.
type QuizReader interface {
	GetQuiz(ctx context.Context, tx db.Transaction, id int64) (*model.Quiz, error)
}

// ApplyOutcome reports what Updater.Apply changed.
type ApplyOutcome struct {
	Applied    bool
	QuizGraded bool
	Score      float64
}

// Updater applies verdicts to question submissions and their quiz submission.
type Updater struct {
	store         repository.AggregateStore
	quizzes       QuizReader
	sink          notify.Sink
	notifyTimeout time.Duration
}

// UpdaterConfig holds updater dependencies.
type UpdaterConfig struct {
	Store         repository.AggregateStore
	Quizzes       QuizReader
	Sink          notify.Sink
	NotifyTimeout time.Duration
}

func NewUpdater(cfg UpdaterConfig) (*Updater, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("aggregate store is required")
	}
	if cfg.Quizzes == nil {
		return nil, fmt.Errorf("quiz reader is required")
	}
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &Updater{
		store:         cfg.Store,
		quizzes:       cfg.Quizzes,
		sink:          cfg.Sink,
		notifyTimeout: timeout,
	}, nil
}

// Apply records verdict on the question submission exactly once.
// A second call for the same submission is a no-op.
func (u *Updater) Apply(ctx context.Context, questionSubmissionID int64, verdict model.Verdict) (ApplyOutcome, error) {
	var (
		out    ApplyOutcome
		quizID int64
		userID int64
	)
	err := u.store.WithinLock(ctx, questionSubmissionID,
		func(ctx context.Context, tx repository.AggregateTx, locked repository.LockedAggregate) error {
			question, quiz := locked.Question, locked.Quiz
			out = ApplyOutcome{Score: quiz.Score}
			if question.IsGraded {
				return nil
			}

			point, err := tx.Point(ctx, quiz.QuizID, question.QuestionID)
			if err != nil {
				return err
			}
			score := quiz.Score + point*verdict.Score
			if err := tx.SaveQuizScore(ctx, quiz.ID, score); err != nil {
				return err
			}

			question.IsCorrect = verdict.Status
			question.IsGraded = true
			question.ExtraInfo = verdict.ExtraInfo
			question.CodeErrors = verdict.CodeErrors
			if err := tx.SaveGradedQuestion(ctx, question); err != nil {
				return err
			}

			ungraded, err := tx.CountUngraded(ctx, quiz.ID)
			if err != nil {
				return err
			}
			out = ApplyOutcome{Applied: true, QuizGraded: ungraded == 0, Score: score}
			quizID, userID = quiz.QuizID, quiz.UserID
			return nil
		})
	if err != nil {
		return ApplyOutcome{}, err
	}

	if out.Applied && out.QuizGraded {
		u.notifyIfFailed(ctx, quizID, userID, out.Score)
	}
	return out, nil
}

// notifyIfFailed runs after commit; its failures never undo the score update.
func (u *Updater) notifyIfFailed(ctx context.Context, quizID, userID int64, score float64) {
	if u.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.notifyTimeout)
	defer cancel()

	quiz, err := u.quizzes.GetQuiz(ctx, nil, quizID)
	if err != nil {
		logger.Warn(ctx, "load quiz for notification failed", zap.Int64("quiz_id", quizID), zap.Error(err))
		return
	}
	if !quiz.PushNotification || score >= quiz.PassScore {
		return
	}
	announcement := model.Announcement{
		UserID:    userID,
		Content:   notify.FailMessage(quiz.Title),
		CreatedAt: time.Now(),
	}
	if err := u.sink.Notify(ctx, announcement); err != nil {
		logger.Warn(ctx, "send fail notification failed",
			zap.Int64("quiz_id", quizID),
			zap.Int64("user_id", userID),
			zap.Int("code", int(appErr.GetCode(err))),
			zap.Error(err),
		)
	}
}
