package repository

import (
	"context"

	"quizsys/internal/common/db"
	"quizsys/internal/grading/model"
	appErr "quizsys/pkg/errors"
)

// SubmissionRepository reads submissions and quizzes.
type SubmissionRepository interface {
	GetQuestionSubmission(ctx context.Context, tx db.Transaction, id int64) (*model.QuestionSubmission, error)
	GetQuizSubmission(ctx context.Context, tx db.Transaction, id int64) (*model.QuizSubmission, error)
	GetQuiz(ctx context.Context, tx db.Transaction, id int64) (*model.Quiz, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const questionSubmissionColumns = "id, quiz_submission_id, question_id, response_type, response, is_correct, is_graded, extra_info, code_errors, created_at"

func (r *MySQLSubmissionRepository) GetQuestionSubmission(ctx context.Context, tx db.Transaction, id int64) (*model.QuestionSubmission, error) {
	return scanQuestionSubmission(db.GetQuerier(r.db, tx).QueryRow(ctx,
		"SELECT "+questionSubmissionColumns+" FROM question_submissions WHERE id = ?", id), id)
}

func (r *MySQLSubmissionRepository) GetQuizSubmission(ctx context.Context, tx db.Transaction, id int64) (*model.QuizSubmission, error) {
	return scanQuizSubmission(db.GetQuerier(r.db, tx).QueryRow(ctx,
		"SELECT id, quiz_id, user_id, score FROM quiz_submissions WHERE id = ?", id), id)
}

func (r *MySQLSubmissionRepository) GetQuiz(ctx context.Context, tx db.Transaction, id int64) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := db.GetQuerier(r.db, tx).QueryRow(ctx,
		"SELECT id, title, pass_score, push_notification FROM quizzes WHERE id = ?", id,
	).Scan(&q.ID, &q.Title, &q.PassScore, &q.PushNotification)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Newf(appErr.QuizNotFound, "quiz %d not found", id)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load quiz failed")
	}
	return q, nil
}

func scanQuestionSubmission(row db.Row, id int64) (*model.QuestionSubmission, error) {
	qs := &model.QuestionSubmission{}
	var responseType string
	err := row.Scan(&qs.ID, &qs.QuizSubmissionID, &qs.QuestionID, &responseType, &qs.Response,
		&qs.IsCorrect, &qs.IsGraded, &qs.ExtraInfo, &qs.CodeErrors, &qs.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Newf(appErr.QuestionSubmissionNotFound, "question submission %d not found", id)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load question submission failed")
	}
	qs.ResponseType = model.QuestionType(responseType)
	return qs, nil
}

func scanQuizSubmission(row db.Row, id int64) (*model.QuizSubmission, error) {
	qs := &model.QuizSubmission{}
	if err := row.Scan(&qs.ID, &qs.QuizID, &qs.UserID, &qs.Score); err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Newf(appErr.QuizSubmissionNotFound, "quiz submission %d not found", id)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load quiz submission failed")
	}
	return qs, nil
}
