package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"quizsys/internal/common/cache"
	"quizsys/internal/common/db"
	"quizsys/internal/grading/model"
	appErr "quizsys/pkg/errors"
)

const (
	defaultQuestionCacheTTL      = 30 * time.Minute
	defaultQuestionCacheEmptyTTL = 5 * time.Minute
	questionCacheKeyPrefix       = "grading:question:"
)

// QuestionRepository loads questions with their choices, answers and test cases.
type QuestionRepository interface {
	GetByID(ctx context.Context, questionID int64) (*model.Question, error)
}

// MySQLQuestionRepository reads questions from MySQL through a Redis cache.
type MySQLQuestionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewQuestionRepository creates a question repository; cacheClient may be nil.
func NewQuestionRepository(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLQuestionRepository {
	if ttl <= 0 {
		ttl = defaultQuestionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultQuestionCacheEmptyTTL
	}
	return &MySQLQuestionRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

// GetByID returns QuestionNotFound when the question does not exist.
func (r *MySQLQuestionRepository) GetByID(ctx context.Context, questionID int64) (*model.Question, error) {
	if questionID <= 0 {
		return nil, appErr.ValidationError("question_id", "must be positive")
	}
	load := r.load
	var (
		question *model.Question
		err      error
	)
	if r.cache != nil {
		question, err = cache.GetWithCached[*model.Question](
			ctx,
			r.cache,
			questionCacheKey(questionID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(q *model.Question) bool { return q == nil },
			marshalQuestion,
			unmarshalQuestion,
			func(ctx context.Context) (*model.Question, error) { return load(ctx, questionID) },
		)
	} else {
		question, err = load(ctx, questionID)
	}
	if err != nil {
		return nil, err
	}
	if question == nil {
		return nil, appErr.Newf(appErr.QuestionNotFound, "question %d not found", questionID)
	}
	return question, nil
}

// load returns nil without error when the question is missing, so the miss can be cached.
func (r *MySQLQuestionRepository) load(ctx context.Context, questionID int64) (*model.Question, error) {
	q := &model.Question{}
	var qType string
	err := r.db.QueryRow(ctx,
		"SELECT id, type, title, description, template FROM questions WHERE id = ?",
		questionID,
	).Scan(&q.ID, &qType, &q.Title, &q.Description, &q.Template)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load question failed")
	}
	q.Type = model.QuestionType(qType)

	switch q.Type {
	case model.QuestionTypeChoice:
		q.Choices, err = r.loadChoices(ctx, questionID)
	case model.QuestionTypeFillBlank:
		q.Answers, err = r.loadAnswers(ctx, questionID)
	case model.QuestionTypeCode:
		q.TestCases, err = r.loadTestCases(ctx, questionID)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *MySQLQuestionRepository) loadChoices(ctx context.Context, questionID int64) ([]model.Choice, error) {
	rows, err := r.db.Query(ctx, "SELECT id, content, is_correct FROM choices WHERE question_id = ? ORDER BY id", questionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load choices failed")
	}
	defer rows.Close()
	var out []model.Choice
	for rows.Next() {
		var c model.Choice
		if err := rows.Scan(&c.ID, &c.Content, &c.IsCorrect); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan choice failed")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate choices failed")
	}
	return out, nil
}

func (r *MySQLQuestionRepository) loadAnswers(ctx context.Context, questionID int64) ([]model.Answer, error) {
	rows, err := r.db.Query(ctx, "SELECT id, content FROM answers WHERE question_id = ? ORDER BY id", questionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load answers failed")
	}
	defer rows.Close()
	var out []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.Content); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan answer failed")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate answers failed")
	}
	return out, nil
}

func (r *MySQLQuestionRepository) loadTestCases(ctx context.Context, questionID int64) ([]model.TestCase, error) {
	rows, err := r.db.Query(ctx, "SELECT id, input, output FROM test_cases WHERE question_id = ? ORDER BY id", questionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	defer rows.Close()
	var out []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.Input, &tc.Output); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan test case failed")
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate test cases failed")
	}
	return out, nil
}

func questionCacheKey(questionID int64) string {
	return questionCacheKeyPrefix + strconv.FormatInt(questionID, 10)
}

func marshalQuestion(q *model.Question) string {
	data, err := json.Marshal(q)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalQuestion(data string) (*model.Question, error) {
	var q model.Question
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return nil, err
	}
	return &q, nil
}
