package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizsys/internal/common/db"
	"quizsys/internal/grading/model"
	"quizsys/internal/grading/repository"
	appErr "quizsys/pkg/errors"
)

// scriptedRow scans fixed values, or fails with err.
type scriptedRow struct {
	values []interface{}
	err    error
}

func (r scriptedRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

// recordingDB runs Transaction callbacks against a recording transaction and
// answers single-row queries by matching a fragment of the statement.
type recordingDB struct {
	unreachableDB

	mu      sync.Mutex
	log     []string
	answers map[string]scriptedRow
}

func (d *recordingDB) record(entry string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, strings.Join(strings.Fields(entry), " "))
}

func (d *recordingDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	d.record("BEGIN")
	if err := fn(&recordingTx{db: d}); err != nil {
		d.record("ROLLBACK")
		return err
	}
	d.record("COMMIT")
	return nil
}

type recordingTx struct {
	db *recordingDB
}

func (t *recordingTx) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errUnreachable
}

func (t *recordingTx) QueryRow(_ context.Context, query string, _ ...interface{}) db.Row {
	t.db.record(query)
	for fragment, row := range t.db.answers {
		if strings.Contains(query, fragment) {
			return row
		}
	}
	return scriptedRow{err: errUnreachable}
}

func (t *recordingTx) Exec(_ context.Context, query string, _ ...interface{}) (db.Result, error) {
	t.db.record(query)
	return driver.RowsAffected(1), nil
}

func (t *recordingTx) Commit() error   { return nil }
func (t *recordingTx) Rollback() error { return nil }

func newRecordingDB() *recordingDB {
	return &recordingDB{answers: map[string]scriptedRow{
		"SELECT quiz_submission_id FROM question_submissions": {values: []interface{}{int64(9)}},
		"FROM quiz_submissions WHERE id = ? FOR UPDATE":      {values: []interface{}{int64(9), int64(4), int64(5), 1.5}},
		"FROM question_submissions WHERE id = ? FOR UPDATE": {values: []interface{}{
			int64(30), int64(9), int64(3), "CHOICE", "1;2", false, false, "", "", time.Unix(0, 0),
		}},
		"SELECT point FROM score_distributions": {values: []interface{}{2.0}},
		"SELECT COUNT(*)":                       {values: []interface{}{0}},
	}}
}

func indexOf(t *testing.T, log []string, fragment string) int {
	t.Helper()
	for i, entry := range log {
		if strings.Contains(entry, fragment) {
			return i
		}
	}
	t.Fatalf("statement containing %q not executed; log: %v", fragment, log)
	return -1
}

func TestWithinLockLocksParentBeforeChildAndCommits(t *testing.T) {
	database := newRecordingDB()
	store := repository.NewAggregateStore(database)

	err := store.WithinLock(context.Background(), 30,
		func(ctx context.Context, tx repository.AggregateTx, locked repository.LockedAggregate) error {
			require.Equal(t, int64(9), locked.Quiz.ID)
			require.Equal(t, 1.5, locked.Quiz.Score)
			require.Equal(t, int64(30), locked.Question.ID)
			require.Equal(t, model.QuestionTypeChoice, locked.Question.ResponseType)

			point, err := tx.Point(ctx, locked.Quiz.QuizID, locked.Question.QuestionID)
			require.NoError(t, err)
			require.NoError(t, tx.SaveQuizScore(ctx, locked.Quiz.ID, locked.Quiz.Score+point))
			locked.Question.IsCorrect = true
			require.NoError(t, tx.SaveGradedQuestion(ctx, locked.Question))
			n, err := tx.CountUngraded(ctx, locked.Quiz.ID)
			require.NoError(t, err)
			require.Zero(t, n)
			return nil
		})
	require.NoError(t, err)

	log := database.log
	require.Equal(t, "BEGIN", log[0])
	require.Equal(t, "COMMIT", log[len(log)-1])
	parent := indexOf(t, log, "FROM quiz_submissions WHERE id = ? FOR UPDATE")
	child := indexOf(t, log, "FROM question_submissions WHERE id = ? FOR UPDATE")
	require.Less(t, parent, child)
	require.Less(t, child, indexOf(t, log, "UPDATE quiz_submissions SET score"))
	require.Less(t, indexOf(t, log, "UPDATE quiz_submissions SET score"), indexOf(t, log, "UPDATE question_submissions"))
	require.NotContains(t, log, "ROLLBACK")
}

func TestWithinLockRollsBackWhenCallbackFails(t *testing.T) {
	database := newRecordingDB()
	store := repository.NewAggregateStore(database)
	boom := errors.New("boom")

	err := store.WithinLock(context.Background(), 30,
		func(ctx context.Context, tx repository.AggregateTx, locked repository.LockedAggregate) error {
			require.NoError(t, tx.SaveQuizScore(ctx, locked.Quiz.ID, 99))
			return boom
		})
	require.ErrorIs(t, err, boom)
	require.Equal(t, "ROLLBACK", database.log[len(database.log)-1])
	require.NotContains(t, database.log, "COMMIT")
}

func TestWithinLockMissingSubmissionRollsBack(t *testing.T) {
	database := newRecordingDB()
	database.answers["SELECT quiz_submission_id FROM question_submissions"] = scriptedRow{err: sql.ErrNoRows}
	store := repository.NewAggregateStore(database)

	called := false
	err := store.WithinLock(context.Background(), 31,
		func(context.Context, repository.AggregateTx, repository.LockedAggregate) error {
			called = true
			return nil
		})
	require.True(t, appErr.Is(err, appErr.QuestionSubmissionNotFound))
	require.False(t, called)
	require.Equal(t, []string{"BEGIN", "SELECT quiz_submission_id FROM question_submissions WHERE id = ?", "ROLLBACK"}, database.log)
}
