package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"quizsys/internal/common/db"
	"quizsys/internal/common/mq"
	"quizsys/internal/grading/dispatcher"
	"quizsys/internal/grading/model"
	"quizsys/internal/grading/repository"
	appErr "quizsys/pkg/errors"
	"quizsys/pkg/utils/contextkey"
	"quizsys/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmissionReader re-reads the question submission named by a queue message.
type SubmissionReader interface {
	GetQuestionSubmission(ctx context.Context, tx db.Transaction, id int64) (*model.QuestionSubmission, error)
}

// TranscriptArchive keeps the per-case runs of graded CODE responses.
type TranscriptArchive interface {
	Store(ctx context.Context, transcript model.Transcript) error
	Load(ctx context.Context, questionSubmissionID int64) (model.Transcript, error)
}

// GradeService consumes grading jobs and serves grading queries.
type GradeService struct {
	submissions    SubmissionReader
	questions      repository.QuestionRepository
	points         repository.ScoreDistributionRepository
	dispatcher     *dispatcher.Dispatcher
	updater        *Updater
	statusRepo     *repository.StatusRepository
	archive        TranscriptArchive
	statusTimeout  time.Duration
	archiveTimeout time.Duration
}

// Config holds service dependencies and settings.
type Config struct {
	Submissions    SubmissionReader
	Questions      repository.QuestionRepository
	Points         repository.ScoreDistributionRepository
	Dispatcher     *dispatcher.Dispatcher
	Updater        *Updater
	StatusRepo     *repository.StatusRepository
	Archive        TranscriptArchive
	StatusTimeout  time.Duration
	ArchiveTimeout time.Duration
}

// NewGradeService creates a new grading service.
func NewGradeService(cfg Config) (*GradeService, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission reader is required")
	}
	if cfg.Questions == nil {
		return nil, fmt.Errorf("question repository is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Updater == nil {
		return nil, fmt.Errorf("updater is required")
	}
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	return &GradeService{
		submissions:    cfg.Submissions,
		questions:      cfg.Questions,
		points:         cfg.Points,
		dispatcher:     cfg.Dispatcher,
		updater:        cfg.Updater,
		statusRepo:     cfg.StatusRepo,
		archive:        cfg.Archive,
		statusTimeout:  cfg.StatusTimeout,
		archiveTimeout: cfg.ArchiveTimeout,
	}, nil
}

// HandleMessage grades the question submission named by msg.
// A nil return acknowledges the message; an error leaves it for redelivery.
func (s *GradeService) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		logger.Warn(ctx, "drop nil grading message")
		return nil
	}
	var payload model.GradeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil || payload.QuestionSubmissionID <= 0 {
		logger.Warn(ctx, "drop invalid grading message",
			zap.String("message_id", msg.ID),
			zap.Int("code", int(appErr.GradeMessageInvalid)),
			zap.Error(err),
		)
		return nil
	}
	id := payload.QuestionSubmissionID
	ctx = context.WithValue(ctx, contextkey.SubmissionID, id)

	qs, err := s.submissions.GetQuestionSubmission(ctx, nil, id)
	if err != nil {
		return s.handleFailure(ctx, id, err)
	}
	if qs.IsGraded {
		logger.Info(ctx, "question submission already graded, skipping")
		s.saveStatus(ctx, model.GradeStatus{QuestionSubmissionID: id, State: model.GradeStateFinished})
		return nil
	}
	s.saveStatus(ctx, model.GradeStatus{QuestionSubmissionID: id, State: model.GradeStateGrading})

	question, err := s.questions.GetByID(ctx, qs.QuestionID)
	if err != nil {
		return s.handleFailure(ctx, id, err)
	}

	outcome, err := s.dispatcher.GradeDetailed(ctx, question, dispatcher.Request{
		SubmissionID: strconv.FormatInt(id, 10),
		ResponseType: qs.ResponseType,
		Response:     qs.Response,
		Mode:         dispatcher.ModeAuthoritative,
	})
	if err != nil {
		return s.handleFailure(ctx, id, err)
	}

	applied, err := s.updater.Apply(ctx, id, outcome.Verdict)
	if err != nil {
		return s.handleFailure(ctx, id, err)
	}
	if !applied.Applied {
		logger.Info(ctx, "verdict already applied by another delivery")
		s.saveStatus(ctx, model.GradeStatus{QuestionSubmissionID: id, State: model.GradeStateFinished})
		return nil
	}

	if question.Type == model.QuestionTypeCode {
		s.archiveTranscript(ctx, model.Transcript{
			QuestionSubmissionID: id,
			QuizSubmissionID:     qs.QuizSubmissionID,
			Verdict:              outcome.Verdict,
			Runs:                 outcome.Runs,
			GradedAt:             time.Now().Unix(),
		})
	}

	verdict := outcome.Verdict
	s.saveStatus(ctx, model.GradeStatus{QuestionSubmissionID: id, State: model.GradeStateFinished, Verdict: &verdict})
	logger.Info(ctx, "question submission graded",
		zap.String("type", string(question.Type)),
		zap.Float64("score", verdict.Score),
		zap.Bool("quiz_graded", applied.QuizGraded),
	)
	return nil
}

// Preview grades response against the sample test cases without touching any submission.
func (s *GradeService) Preview(ctx context.Context, questionID int64, responseType model.QuestionType, response string) (model.Verdict, error) {
	if questionID <= 0 {
		return model.Verdict{}, appErr.ValidationError("question_id", "must be positive")
	}
	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return model.Verdict{}, err
	}
	return s.dispatcher.Grade(ctx, question, dispatcher.Request{
		SubmissionID: "preview-" + uuid.NewString(),
		ResponseType: responseType,
		Response:     response,
		Mode:         dispatcher.ModeSample,
	})
}

// Status returns the grading progress of a question submission.
func (s *GradeService) Status(ctx context.Context, questionSubmissionID int64) (model.GradeStatus, error) {
	return s.statusRepo.Get(ctx, questionSubmissionID)
}

// Transcript returns the archived runs of a graded CODE submission.
func (s *GradeService) Transcript(ctx context.Context, questionSubmissionID int64) (model.Transcript, error) {
	if questionSubmissionID <= 0 {
		return model.Transcript{}, appErr.ValidationError("question_submission_id", "must be positive")
	}
	if s.archive == nil {
		return model.Transcript{}, appErr.New(appErr.TranscriptNotFound).WithMessage("transcript archive is disabled")
	}
	return s.archive.Load(ctx, questionSubmissionID)
}

// SetPoint sets the weight of a question inside a quiz.
func (s *GradeService) SetPoint(ctx context.Context, quizID, questionID int64, point float64) error {
	if s.points == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("score distribution store is not configured")
	}
	return s.points.SetPoint(ctx, quizID, questionID, point)
}

func (s *GradeService) archiveTranscript(ctx context.Context, transcript model.Transcript) {
	if s.archive == nil || len(transcript.Runs) == 0 {
		return
	}
	ctxArchive := context.WithoutCancel(ctx)
	if s.archiveTimeout > 0 {
		var cancel context.CancelFunc
		ctxArchive, cancel = context.WithTimeout(ctxArchive, s.archiveTimeout)
		defer cancel()
	}
	if err := s.archive.Store(ctxArchive, transcript); err != nil {
		logger.Warn(ctx, "archive transcript failed", zap.Error(err))
	}
}

// saveStatus is best effort; the verdict in MySQL is the source of truth.
func (s *GradeService) saveStatus(ctx context.Context, status model.GradeStatus) {
	ctxStatus := context.WithoutCancel(ctx)
	if s.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctxStatus, cancel = context.WithTimeout(ctxStatus, s.statusTimeout)
		defer cancel()
	}
	if err := s.statusRepo.Save(ctxStatus, status); err != nil {
		logger.Warn(ctx, "update grading status failed", zap.String("state", string(status.State)), zap.Error(err))
	}
}

func (s *GradeService) handleFailure(ctx context.Context, questionSubmissionID int64, err error) error {
	code := appErr.GetCode(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if !isTerminal(code) {
		logger.Error(ctx, "grading failed, message will be redelivered", zap.Int("code", int(code)), zap.Error(err))
		return err
	}
	logger.Warn(ctx, "grading rejected", zap.Int("code", int(code)), zap.Error(err))
	s.saveStatus(ctx, model.GradeStatus{
		QuestionSubmissionID: questionSubmissionID,
		State:                model.GradeStateFailed,
		ErrorCode:            int(code),
		ErrorMessage:         err.Error(),
	})
	return nil
}

// isTerminal reports errors that redelivery cannot fix.
func isTerminal(code appErr.ErrorCode) bool {
	switch code {
	case appErr.InvalidParams,
		appErr.ValidationFailed,
		appErr.GradeMessageInvalid,
		appErr.QuizNotFound,
		appErr.QuestionNotFound,
		appErr.QuizSubmissionNotFound,
		appErr.QuestionSubmissionNotFound,
		appErr.QuestionTypeMismatch,
		appErr.UnknownQuestionType,
		appErr.ScoreDistributionNotFound,
		appErr.TestCaseMissing,
		appErr.GradeSystemError:
		return true
	}
	return false
}
