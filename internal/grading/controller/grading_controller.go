package controller

import (
	"context"
	"strconv"

	"quizsys/internal/grading/model"
	"quizsys/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// GradingService is the query side of the grading worker.
type GradingService interface {
	Status(ctx context.Context, questionSubmissionID int64) (model.GradeStatus, error)
	Transcript(ctx context.Context, questionSubmissionID int64) (model.Transcript, error)
	Preview(ctx context.Context, questionID int64, responseType model.QuestionType, response string) (model.Verdict, error)
	SetPoint(ctx context.Context, quizID, questionID int64, point float64) error
}

// Enqueuer schedules question submissions for grading.
type Enqueuer interface {
	Enqueue(ctx context.Context, questionSubmissionID int64) error
}

// GradingController handles grading HTTP endpoints.
type GradingController struct {
	svc      GradingService
	enqueuer Enqueuer
}

// NewGradingController creates a new controller.
func NewGradingController(svc GradingService, enqueuer Enqueuer) *GradingController {
	return &GradingController{svc: svc, enqueuer: enqueuer}
}

// Enqueue schedules one question submission.
func (h *GradingController) Enqueue(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid question submission id")
		return
	}
	if err := h.enqueuer.Enqueue(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, EnqueueResponse{QuestionSubmissionID: id, State: string(model.GradeStatePending)})
}

// GetStatus returns grading status for one question submission.
func (h *GradingController) GetStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid question submission id")
		return
	}
	status, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// GetTranscript returns the archived test case runs of a CODE submission.
func (h *GradingController) GetTranscript(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid question submission id")
		return
	}
	transcript, err := h.svc.Transcript(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, transcript)
}

// Preview grades a response against the sample test cases.
func (h *GradingController) Preview(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid question id")
		return
	}
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	verdict, err := h.svc.Preview(c.Request.Context(), id, model.QuestionType(req.ResponseType), req.Response)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, verdict)
}

// SetPoint sets the weight of a question inside a quiz.
func (h *GradingController) SetPoint(c *gin.Context) {
	quizID, ok := pathID(c, "quizID")
	if !ok {
		response.BadRequest(c, "Invalid quiz id")
		return
	}
	questionID, ok := pathID(c, "questionID")
	if !ok {
		response.BadRequest(c, "Invalid question id")
		return
	}
	var req SetPointRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Point == nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := h.svc.SetPoint(c.Request.Context(), quizID, questionID, *req.Point); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, model.ScoreDistribution{QuizID: quizID, QuestionID: questionID, Point: *req.Point})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Register mounts the grading routes under group, normally /api/v1/grading.
// previewGuards run before Preview, which executes learner code.
func (h *GradingController) Register(group *gin.RouterGroup, previewGuards ...gin.HandlerFunc) {
	group.POST("/question-submissions/:id/enqueue", h.Enqueue)
	group.GET("/question-submissions/:id/status", h.GetStatus)
	group.GET("/question-submissions/:id/transcript", h.GetTranscript)
	group.POST("/questions/:id/preview", append(previewGuards, h.Preview)...)
	group.PUT("/quizzes/:quizID/questions/:questionID/point", h.SetPoint)
}
