package lesson

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLessonMock(t *testing.T) (Repository, sqlmock.Sqlmock) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewRepository(sqlx.NewDb(raw, "sqlmock")), mock
}

func TestDeleteLesson_RemovesBookingsFirst(t *testing.T) {
	repo, mock := setupLessonMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings WHERE lesson_id = $1")).
		WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lessons WHERE id = $1")).
		WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteLesson(context.Background(), 11))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLesson_NotFoundRollsBack(t *testing.T) {
	repo, mock := setupLessonMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings WHERE lesson_id = $1")).
		WithArgs(12).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lessons WHERE id = $1")).
		WithArgs(12).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeleteLesson(context.Background(), 12)
	assert.ErrorIs(t, err, ErrLessonNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUnbookedInRange(t *testing.T) {
	repo, mock := setupLessonMock(t)
	from := time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT l.id FROM lessons l")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons l")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings WHERE lesson_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lessons WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	deleted, preserved, err := repo.DeleteUnbookedInRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 1, preserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUnbookedInRange_NothingToDelete(t *testing.T) {
	repo, mock := setupLessonMock(t)
	from := time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT l.id FROM lessons l")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons l")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectCommit()

	deleted, preserved, err := repo.DeleteUnbookedInRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
	assert.Equal(t, 3, preserved)
}

func TestGetClassOption_ExpandsDropInAndPlans(t *testing.T) {
	repo, mock := setupLessonMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM class_options")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "places", "type", "drop_in_id", "created_at"}).
			AddRow(7, "Reformer", "", 8, "adult", 2, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT plan_id FROM class_option_plans WHERE class_option_id = $1")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"plan_id"}).AddRow(1).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM drop_ins")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price_cents", "currency", "discount_tiers", "active", "created_at"}).
			AddRow(2, "Single class", 1500, "eur", []byte(`[{"min_quantity":1,"discount":100,"type":"trial"}]`), true, now))

	o, err := repo.GetClassOption(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, o.AllowedPlans)
	assert.True(t, o.AllowsPlan(3))
	assert.False(t, o.AllowsPlan(2))
	assert.True(t, o.Trialable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetClassOption_NotFound(t *testing.T) {
	repo, mock := setupLessonMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM class_options")).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetClassOption(context.Background(), 99)
	assert.ErrorIs(t, err, ErrClassOptionNotFound)
}

func TestFindOverlapping(t *testing.T) {
	repo, mock := setupLessonMock(t)
	start := time.Date(2025, 3, 31, 6, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE location = $1 AND start_time < $3 AND end_time > $2")).
		WithArgs("Studio A", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"id", "date", "start_time", "end_time", "lock_out_time", "location", "instructor_id", "class_option_id", "active", "created_at"}).
			AddRow(1, start, start, end, 30, "Studio A", nil, 7, true, start))

	lessons, err := repo.FindOverlapping(context.Background(), "Studio A", start, end)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, 7, lessons[0].ClassOption.ID())
	assert.True(t, lessons[0].Instructor.IsZero())
}
