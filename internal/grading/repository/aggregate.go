package repository

import (
	"context"

	"quizsys/internal/common/db"
	"quizsys/internal/grading/model"
	appErr "quizsys/pkg/errors"
)

// LockedAggregate is a question submission and its parent, both locked for the
// duration of an AggregateStore.WithinLock callback.
type LockedAggregate struct {
	Question *model.QuestionSubmission
	Quiz     *model.QuizSubmission
}

// AggregateTx is the write surface available while the aggregate is locked.
type AggregateTx interface {
	Point(ctx context.Context, quizID, questionID int64) (float64, error)
	SaveQuizScore(ctx context.Context, quizSubmissionID int64, score float64) error
	SaveGradedQuestion(ctx context.Context, qs *model.QuestionSubmission) error
	CountUngraded(ctx context.Context, quizSubmissionID int64) (int, error)
}

// AggregateStore serializes updates of one quiz submission.
// fn runs in a single transaction; returning an error rolls everything back.
type AggregateStore interface {
	WithinLock(ctx context.Context, questionSubmissionID int64,
		fn func(ctx context.Context, tx AggregateTx, locked LockedAggregate) error) error
}

// MySQLAggregateStore locks rows with SELECT ... FOR UPDATE.
// The parent quiz submission is always locked before the child so siblings
// queue on the parent instead of deadlocking.
type MySQLAggregateStore struct {
	db          db.Database
	submissions *MySQLSubmissionRepository
	points      *MySQLScoreDistributionRepository
}

func NewAggregateStore(database db.Database) *MySQLAggregateStore {
	return &MySQLAggregateStore{
		db:          database,
		submissions: NewSubmissionRepository(database),
		points:      NewScoreDistributionRepository(database),
	}
}

func (s *MySQLAggregateStore) WithinLock(ctx context.Context, questionSubmissionID int64,
	fn func(ctx context.Context, tx AggregateTx, locked LockedAggregate) error) error {
	return s.db.Transaction(ctx, func(tx db.Transaction) error {
		var parentID int64
		err := tx.QueryRow(ctx,
			"SELECT quiz_submission_id FROM question_submissions WHERE id = ?", questionSubmissionID,
		).Scan(&parentID)
		if err != nil {
			if db.IsNoRows(err) {
				return appErr.Newf(appErr.QuestionSubmissionNotFound, "question submission %d not found", questionSubmissionID)
			}
			return appErr.Wrapf(err, appErr.DatabaseError, "load question submission failed")
		}

		quiz, err := scanQuizSubmission(tx.QueryRow(ctx,
			"SELECT id, quiz_id, user_id, score FROM quiz_submissions WHERE id = ? FOR UPDATE", parentID), parentID)
		if err != nil {
			return err
		}
		question, err := scanQuestionSubmission(tx.QueryRow(ctx,
			"SELECT "+questionSubmissionColumns+" FROM question_submissions WHERE id = ? FOR UPDATE", questionSubmissionID),
			questionSubmissionID)
		if err != nil {
			return err
		}
		return fn(ctx, &mysqlAggregateTx{store: s, tx: tx}, LockedAggregate{Question: question, Quiz: quiz})
	})
}

type mysqlAggregateTx struct {
	store *MySQLAggregateStore
	tx    db.Transaction
}

func (t *mysqlAggregateTx) Point(ctx context.Context, quizID, questionID int64) (float64, error) {
	return t.store.points.GetPoint(ctx, t.tx, quizID, questionID)
}

func (t *mysqlAggregateTx) SaveQuizScore(ctx context.Context, quizSubmissionID int64, score float64) error {
	if _, err := t.tx.Exec(ctx, "UPDATE quiz_submissions SET score = ? WHERE id = ?", score, quizSubmissionID); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update quiz score failed")
	}
	return nil
}

// SaveGradedQuestion writes the verdict fields; is_graded is only ever set, never cleared.
func (t *mysqlAggregateTx) SaveGradedQuestion(ctx context.Context, qs *model.QuestionSubmission) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE question_submissions
		SET is_correct = ?, is_graded = 1, extra_info = ?, code_errors = ?
		WHERE id = ?
	`, qs.IsCorrect, qs.ExtraInfo, qs.CodeErrors, qs.ID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update question submission failed")
	}
	return nil
}

func (t *mysqlAggregateTx) CountUngraded(ctx context.Context, quizSubmissionID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM question_submissions WHERE quiz_submission_id = ? AND is_graded = 0", quizSubmissionID,
	).Scan(&n)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "count ungraded submissions failed")
	}
	return n, nil
}
