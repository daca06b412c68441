package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Quiz data errors (questions, quizzes, submissions)
// 13000-13999: Grading pipeline errors
const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Quiz Data Errors (12000-12999) ==========

	// Quizzes & questions (12000-12099)
	QuizNotFound         ErrorCode = 12000
	QuestionNotFound     ErrorCode = 12001
	QuestionTypeMismatch ErrorCode = 12002
	UnknownQuestionType  ErrorCode = 12003

	// Submissions & weights (12100-12199)
	QuizSubmissionNotFound     ErrorCode = 12100
	QuestionSubmissionNotFound ErrorCode = 12101
	ScoreDistributionNotFound  ErrorCode = 12102

	// ========== Grading Errors (13000-13999) ==========

	// Queue (13000-13099)
	GradeQueueUnavailable ErrorCode = 13000
	GradeMessageInvalid   ErrorCode = 13001

	// Execution (13100-13199)
	GradeSystemError ErrorCode = 13100
	TestCaseMissing  ErrorCode = 13101
	SandboxFailure   ErrorCode = 13102

	// Side effects (13200-13299)
	NotificationFailed      ErrorCode = 13200
	TranscriptArchiveFailed ErrorCode = 13201
	TranscriptNotFound      ErrorCode = 13202
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Quiz data
	QuizNotFound:               "Quiz not found",
	QuestionNotFound:           "Question not found",
	QuestionTypeMismatch:       "Question type mismatch",
	UnknownQuestionType:        "Unknown question type",
	QuizSubmissionNotFound:     "Quiz submission not found",
	QuestionSubmissionNotFound: "Question submission not found",
	ScoreDistributionNotFound:  "Question has no point value in this quiz",

	// Grading
	GradeQueueUnavailable:   "Grading queue is unavailable",
	GradeMessageInvalid:     "Invalid grading message",
	GradeSystemError:        "Grading system error",
	TestCaseMissing:         "Question has no test cases to grade against",
	SandboxFailure:          "Sandbox failed to execute the program",
	NotificationFailed:      "Failed to deliver notification",
	TranscriptArchiveFailed: "Failed to archive run transcript",
	TranscriptNotFound:      "Run transcript not found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == QuizNotFound, c == QuestionNotFound,
		c == QuizSubmissionNotFound, c == QuestionSubmissionNotFound, c == TranscriptNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == GradeQueueUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == QuestionTypeMismatch, c == UnknownQuestionType, c == GradeMessageInvalid:
		return 400
	case c == ScoreDistributionNotFound, c == TestCaseMissing:
		return 422
	default:
		return 500
	}
}
