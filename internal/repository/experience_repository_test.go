package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
)

var experienceCols = []string{
	"id", "partner_id", "title", "description", "location", "duration", "price", "category",
	"available_dates", "status", "created_at", "updated_at",
}

func experienceRow(id, partnerID uint64, rules any) *sqlmock.Rows {
	now := time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(experienceCols).AddRow(
		id, partnerID, "Guidet naturtur", nil, "Bornholm", "3 timer", 350.0, "Natur", rules, "active", now, now)
}

func TestExperienceRepo_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewExperienceRepo(db)

	mock.ExpectQuery("FROM experiences WHERE id = \\?").WithArgs(uint64(2)).
		WillReturnRows(experienceRow(2, 7, []byte(`{"type":"list","dates":["2025-12-05"]}`)))

	e, err := repo.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityList, e.Availability.Type)
	assert.Equal(t, "", e.Description)
	assert.True(t, e.IsActive())

	mock.ExpectQuery("FROM experiences WHERE id = \\?").WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows(experienceCols))
	_, err = repo.GetByID(context.Background(), 3)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestExperienceRepo_ListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewExperienceRepo(db)

	mock.ExpectQuery("FROM experiences WHERE status = \\? ORDER BY title").
		WithArgs("active").
		WillReturnRows(experienceRow(2, 7, `{"type":"always"}`))
	items, err := repo.ListActive(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.AvailabilityAlways, items[0].Availability.Type)

	mock.ExpectQuery("FROM experiences WHERE status = \\? AND category = \\?").
		WithArgs("active", "Mad").
		WillReturnRows(sqlmock.NewRows(experienceCols))
	items, err = repo.ListActive(context.Background(), "Mad")
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExperienceRepo_GetForPartner_Forbidden(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewExperienceRepo(db)

	mock.ExpectQuery("FROM experiences WHERE id = \\?").WithArgs(uint64(2)).
		WillReturnRows(experienceRow(2, 7, nil))

	_, err = repo.GetForPartner(context.Background(), 2, 8)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestExperienceRepo_Delete_WithBookings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewExperienceRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT partner_id FROM experiences WHERE id = \\? FOR UPDATE").WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"partner_id"}).AddRow(7))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bookings").WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err = repo.Delete(context.Background(), 2, 7)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExperienceRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewExperienceRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT partner_id FROM experiences").WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"partner_id"}).AddRow(7))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bookings").WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM booking_capacity").WithArgs(uint64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM experiences").WithArgs(uint64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 2, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityRepo_ReservedBetween(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewCapacityRepo(db)

	mock.ExpectQuery("SELECT booking_date, reserved FROM booking_capacity").
		WithArgs(uint64(2), "2025-12-01", "2026-01-30").
		WillReturnRows(sqlmock.NewRows([]string{"booking_date", "reserved"}).
			AddRow(time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC), 4).
			AddRow(time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC), 10))

	got, err := repo.ReservedBetween(context.Background(), 2,
		time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2025-12-06": 4, "2025-12-24": 10}, got)

	mock.ExpectQuery("SELECT reserved FROM booking_capacity").
		WillReturnRows(sqlmock.NewRows([]string{"reserved"}))
	n, err := repo.Reserved(context.Background(), 2, time.Date(2025, 12, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCapacityRepo_Rebuild(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewCapacityRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE booking_capacity SET reserved = 0, capacity = \\?").
		WithArgs(8).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("ON DUPLICATE KEY UPDATE reserved = VALUES\\(reserved\\), capacity = VALUES\\(capacity\\)").
		WithArgs(8).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	require.NoError(t, repo.Rebuild(context.Background(), 8))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE booking_capacity").WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()
	assert.Error(t, repo.Rebuild(context.Background(), 8))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSmsLogRepo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSmsLogRepo(db)

	mock.ExpectExec("INSERT INTO sms_logs").
		WithArgs(nil, "+4512345678", "X", "inbound", "SM1", "received").
		WillReturnResult(sqlmock.NewResult(5, 1))
	sid := "SM1"
	l := &model.SmsLog{PhoneNumber: "+4512345678", MessageBody: "X", Direction: model.DirectionInbound,
		ProviderMessageID: &sid, Status: model.SmsStatusReceived}
	require.NoError(t, repo.Create(context.Background(), l))
	assert.Equal(t, uint64(5), l.ID)

	bookingID := uint64(41)
	mock.ExpectExec("INSERT INTO sms_logs").
		WithArgs(uint64(41), "+4512345678", "Hej Mette!", "outbound", nil, "sent").
		WillReturnResult(sqlmock.NewResult(6, 1))
	out := &model.SmsLog{BookingID: &bookingID, PhoneNumber: "+4512345678", MessageBody: "Hej Mette!",
		Direction: model.DirectionOutbound, Status: model.SmsStatusSent}
	require.NoError(t, repo.Create(context.Background(), out))
	assert.Equal(t, uint64(6), out.ID)

	now := time.Now()
	mock.ExpectQuery("FROM sms_logs WHERE booking_id = \\?").WithArgs(uint64(41)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "phone_number", "message_body", "direction",
			"provider_message_id", "status", "created_at"}).
			AddRow(6, 41, "+4512345678", "Tak", "outbound", nil, "sent", now))
	logs, err := repo.ListByBooking(context.Background(), 41)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].BookingID)
	assert.Equal(t, uint64(41), *logs[0].BookingID)
	assert.Nil(t, logs[0].ProviderMessageID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, isDuplicateKey(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1452}))
	assert.False(t, isDuplicateKey(errors.New("boom")))
}
