package schedule

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

func setupScheduleMock(t *testing.T) (Repository, sqlmock.Sqlmock) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewRepository(sqlx.NewDb(raw, "sqlmock")), mock
}

func TestCreateTemplate(t *testing.T) {
	repo, mock := setupScheduleMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO schedules")).
		WithArgs("Weekdays", sqlmock.AnyArg(), 2, 30, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, now))

	tpl := &Template{Name: "Weekdays", Week: everyDay(slot("07:00", "08:00")), DefaultClassOptionID: 2, LockOutTime: 30, Active: true}
	require.NoError(t, repo.CreateTemplate(context.Background(), tpl))
	assert.Equal(t, 7, tpl.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTemplates_ActiveOnlyDecodesWeek(t *testing.T) {
	repo, mock := setupScheduleMock(t)
	week := `{"days":[{"slots":[{"start_time":"07:00","end_time":"08:00","location":"Studio A"}]},{"slots":[]},{"slots":[]},{"slots":[]},{"slots":[]},{"slots":[]},{"slots":[]}]}`

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedules WHERE active = TRUE ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "week", "default_class_option_id", "lock_out_time", "active", "created_at"}).
			AddRow(1, "Mornings", []byte(week), 2, 30, true, time.Now()))

	templates, err := repo.ListTemplates(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Len(t, templates[0].Week.Days, 7)
	assert.Equal(t, TimeOfDay{Hour: 7}, templates[0].Week.Days[0].Slots[0].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplate_NotFound(t *testing.T) {
	repo, mock := setupScheduleMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedules WHERE id = $1")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetTemplate(context.Background(), 9)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestSetTemplateActive_NotFound(t *testing.T) {
	repo, mock := setupScheduleMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET active = $1 WHERE id = $2")).
		WithArgs(false, 9).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetTemplateActive(context.Background(), 9, false)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
