package repository

import (
	"context"

	"quizsys/internal/common/db"
	appErr "quizsys/pkg/errors"
)

// ScoreDistributionRepository stores the point value of each question per quiz.
type ScoreDistributionRepository interface {
	// SetPoint creates or overwrites the point of (questionID, quizID).
	SetPoint(ctx context.Context, quizID, questionID int64, point float64) error
	GetPoint(ctx context.Context, tx db.Transaction, quizID, questionID int64) (float64, error)
}

type MySQLScoreDistributionRepository struct {
	db db.Database
}

func NewScoreDistributionRepository(database db.Database) *MySQLScoreDistributionRepository {
	return &MySQLScoreDistributionRepository{db: database}
}

func (r *MySQLScoreDistributionRepository) SetPoint(ctx context.Context, quizID, questionID int64, point float64) error {
	if quizID <= 0 {
		return appErr.ValidationError("quiz_id", "must be positive")
	}
	if questionID <= 0 {
		return appErr.ValidationError("question_id", "must be positive")
	}
	if point < 0 {
		return appErr.ValidationError("point", "must not be negative")
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO score_distributions (question_id, quiz_id, point)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE point = VALUES(point)
	`, questionID, quizID, point)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "upsert score distribution failed")
	}
	return nil
}

// GetPoint returns ScoreDistributionNotFound when the question carries no weight in the quiz.
func (r *MySQLScoreDistributionRepository) GetPoint(ctx context.Context, tx db.Transaction, quizID, questionID int64) (float64, error) {
	var point float64
	err := db.GetQuerier(r.db, tx).QueryRow(ctx,
		"SELECT point FROM score_distributions WHERE question_id = ? AND quiz_id = ?",
		questionID, quizID,
	).Scan(&point)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, appErr.Newf(appErr.ScoreDistributionNotFound,
				"question %d has no point value in quiz %d", questionID, quizID)
		}
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "load score distribution failed")
	}
	return point, nil
}
