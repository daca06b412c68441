package controller

// PreviewRequest is the body of a preview call.
type PreviewRequest struct {
	ResponseType string `json:"response_type"`
	Response     string `json:"response"`
}

// SetPointRequest is the body of a point update.
type SetPointRequest struct {
	Point *float64 `json:"point"`
}

// EnqueueResponse acknowledges an accepted grading job.
type EnqueueResponse struct {
	QuestionSubmissionID int64  `json:"question_submission_id"`
	State                string `json:"state"`
}
