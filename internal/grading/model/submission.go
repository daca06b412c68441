package model

import "time"

// Quiz holds the fields grading needs to decide on a fail notification.
type Quiz struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	PassScore        float64 `json:"pass_score"`
	PushNotification bool    `json:"push_notification"`
}

// ScoreDistribution is the point value of a question inside one quiz.
// (QuestionID, QuizID) is unique.
type ScoreDistribution struct {
	QuestionID int64   `json:"question_id"`
	QuizID     int64   `json:"quiz_id"`
	Point      float64 `json:"point"`
}

// QuizSubmission is one learner attempt at a quiz.
// Score is only changed by the aggregate updater.
type QuizSubmission struct {
	ID       int64   `json:"id"`
	QuizID   int64   `json:"quiz_id"`
	UserID   int64   `json:"user_id"`
	Score    float64 `json:"score"`
	IsGraded bool    `json:"is_graded"`
}

// QuestionSubmission is a learner's response to one question of a quiz submission.
// IsGraded moves from false to true once and is never reset.
type QuestionSubmission struct {
	ID               int64        `json:"id"`
	QuizSubmissionID int64        `json:"quiz_submission_id"`
	QuestionID       int64        `json:"question_id"`
	ResponseType     QuestionType `json:"response_type,omitempty"`
	Response         string       `json:"response"`
	IsCorrect        bool         `json:"is_correct"`
	IsGraded         bool         `json:"is_graded"`
	ExtraInfo        string       `json:"extra_info"`
	CodeErrors       string       `json:"code_errors"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Announcement is a message shown to one user.
type Announcement struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
