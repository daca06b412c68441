package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "quizsys/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{QuestionNotFound, "Question not found"},
		{GradeQueueUnavailable, "Grading queue is unavailable"},
		{DatabaseError, "Database operation failed"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{QuestionTypeMismatch, 400},
		{QuestionSubmissionNotFound, 404},
		{TranscriptNotFound, 404},
		{ScoreDistributionNotFound, 422},
		{TooManyRequests, 429},
		{SandboxFailure, 500},
		{GradeQueueUnavailable, 503},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(QuizNotFound, "quiz %d not found", 12)

	if err.Code != QuizNotFound {
		t.Errorf("Code = %v, want %v", err.Code, QuizNotFound)
	}
	if want := "quiz 12 not found"; err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("wrapped error should keep the original in its chain")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrapRecodesExistingError(t *testing.T) {
	inner := Newf(CacheError, "redis timeout")
	err := Wrap(fmt.Errorf("load status: %w", inner), GradeSystemError)

	if err.Code != GradeSystemError {
		t.Errorf("Code = %v, want %v", err.Code, GradeSystemError)
	}
	if err.Error() != "redis timeout" {
		t.Errorf("Error() = %v, want original message", err.Error())
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(TestCaseMissing), want: TestCaseMissing},
		{name: "wrapped custom error", err: fmt.Errorf("grade: %w", New(SandboxFailure)), want: SandboxFailure},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(QuestionNotFound)

	if !Is(err, QuestionNotFound) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, QuestionNotFound) {
		t.Error("Is() should return false for nil error")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("BadRequest", func(t *testing.T) {
		if err := BadRequest("invalid input"); err.Code != InvalidParams {
			t.Error("BadRequest should use InvalidParams code")
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("transcript")
		if err.Code != NotFound || err.Error() != "transcript not found" {
			t.Errorf("NotFoundError = %v (%v)", err, err.Code)
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		if err := InternalError(errors.New("db error")); err.Code != InternalServerError {
			t.Error("InternalError should use InternalServerError code")
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("point", "must not be negative")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "point" {
			t.Error("Field detail not set")
		}
	})
}
