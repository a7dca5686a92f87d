package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/experience-booking/internal/model"
)

// SmsLogRepo appends to and reads the SMS audit trail. Rows are never
// updated or deleted.
type SmsLogRepo struct{ db *sql.DB }

func NewSmsLogRepo(db *sql.DB) *SmsLogRepo { return &SmsLogRepo{db: db} }

const smsLogColumns = "id, booking_id, phone_number, message_body, direction, provider_message_id, status, created_at"

// Create appends l and fills in its ID.
func (r *SmsLogRepo) Create(ctx context.Context, l *model.SmsLog) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sms_logs (booking_id, phone_number, message_body, direction, provider_message_id, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.BookingID, l.PhoneNumber, l.MessageBody, l.Direction, l.ProviderMessageID, l.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	return nil
}

// ListByBooking returns the messages exchanged about one booking, oldest first.
func (r *SmsLogRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.SmsLog, error) {
	return r.list(ctx, "SELECT "+smsLogColumns+" FROM sms_logs WHERE booking_id = ? ORDER BY created_at, id", bookingID)
}

func (r *SmsLogRepo) list(ctx context.Context, q string, arg any) ([]model.SmsLog, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SmsLog
	for rows.Next() {
		var (
			l         model.SmsLog
			bookingID sql.NullInt64
			sid       sql.NullString
		)
		if err := rows.Scan(&l.ID, &bookingID, &l.PhoneNumber, &l.MessageBody, &l.Direction, &sid, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		if bookingID.Valid {
			id := uint64(bookingID.Int64)
			l.BookingID = &id
		}
		if sid.Valid {
			l.ProviderMessageID = &sid.String
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
