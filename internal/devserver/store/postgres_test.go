package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestReportIncident_Inserts(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT INTO incidents .* ON CONFLICT \(idempotency_key\) DO NOTHING RETURNING id`).
		WithArgs(sqlmock.AnyArg(), sql.NullString{String: "k1", Valid: true}, sqlmock.AnyArg(), s.now()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inc-1"))

	got, err := s.ReportIncident(context.Background(), models.IncidentReport{LocalID: "l1", Title: "Flood"}, "k1")
	require.NoError(t, err)
	assert.Equal(t, "inc-1", got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportIncident_DuplicateKeyReturnsExisting(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT INTO incidents`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id FROM incidents WHERE idempotency_key = \$1`).
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inc-first"))

	got, err := s.ReportIncident(context.Background(), models.IncidentReport{LocalID: "l1", Title: "Flood"}, "k1")
	require.NoError(t, err)
	assert.Equal(t, "inc-first", got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportIncident_EmptyKeyIsNull(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT INTO incidents`).
		WithArgs(sqlmock.AnyArg(), sql.NullString{}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inc-2"))

	_, err := s.ReportIncident(context.Background(), models.IncidentReport{LocalID: "l2", Title: "Fire"}, "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportIncident_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(`INSERT INTO incidents`).WillReturnError(errors.New("conn reset"))

	_, err := s.ReportIncident(context.Background(), models.IncidentReport{}, "k")
	require.ErrorContains(t, err, "failed to insert incident")
}

func TestNotifications_List(t *testing.T) {
	s, mock := newStoreWithMock(t)
	at := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)

	cols := []string{"id", "alert_type", "message", "location", "created_at", "is_read"}
	mock.ExpectQuery(`FROM notifications WHERE NOT is_read ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("n2", "weather-warning", "Storm", "Ridge", at, false))
	mock.ExpectQuery(`FROM notifications ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("n2", "weather-warning", "Storm", "Ridge", at, false).
			AddRow("n1", "system-alert", "Hello", "", at.Add(-time.Hour), true))

	unread, err := s.GetUnreadNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Notification{{ID: "n2", AlertType: models.AlertWeatherWarning, Message: "Storm", Location: "Ridge", CreatedAt: at}}, unread)

	all, err := s.GetAllNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[1].IsRead)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotificationAsRead(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`UPDATE notifications SET is_read = TRUE WHERE id = \$1`).
		WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE notifications SET is_read = TRUE WHERE id = \$1`).
		WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE notifications SET is_read = TRUE WHERE NOT is_read`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, s.MarkNotificationAsRead(context.Background(), "n1"))
	require.ErrorIs(t, s.MarkNotificationAsRead(context.Background(), "nope"), common.ErrNotFound)
	require.NoError(t, s.MarkAllNotificationsAsRead(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_FillsIDAndTime(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(sqlmock.AnyArg(), "high-risk-zone", "Avoid sector 4", "Sector 4", s.now(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.Publish(context.Background(), models.Notification{
		AlertType: models.AlertHighRiskZone, Message: "Avoid sector 4", Location: "Sector 4",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, s.now(), n.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
