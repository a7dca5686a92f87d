package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/experience-booking/internal/model"
)

// BookingRepo persists bookings and keeps the capacity counters in step
// with them. Every write that changes how many participants a date holds
// (insert, cancellation) updates booking_capacity in the same transaction.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying pool.
func (r *BookingRepo) DB() *sql.DB { return r.db }

// The experience title is joined for display; the snapshot column is the
// fallback for experiences that were deleted or renamed.
const bookingSelect = `SELECT b.id, b.experience_id, COALESCE(e.title, b.experience_title), b.experience_location,
       b.experience_price, b.booking_date, b.booking_time, b.customer_name, b.customer_email, b.customer_phone,
       b.number_of_participants, b.total_price, b.status, b.reminder_sent, b.reminder_response,
       b.reminder_response_date, b.payment_intent_id, b.checkout_session_id, b.created_at, b.updated_at
FROM bookings b
LEFT JOIN experiences e ON e.id = b.experience_id`

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b            model.Booking
		status       string
		bookingTime  sql.NullString
		phone        sql.NullString
		response     sql.NullString
		responseDate sql.NullTime
		intent       sql.NullString
		session      sql.NullString
	)
	err := row.Scan(&b.ID, &b.ExperienceID, &b.ExperienceTitle, &b.ExperienceLocation, &b.ExperiencePrice,
		&b.BookingDate, &bookingTime, &b.CustomerName, &b.CustomerEmail, &phone,
		&b.NumberOfParticipants, &b.TotalPrice, &status, &b.ReminderSent, &response,
		&responseDate, &intent, &session, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	b.BookingDate = model.Day(b.BookingDate)
	if bookingTime.Valid {
		b.BookingTime = &bookingTime.String
	}
	if phone.Valid && phone.String != "" {
		b.CustomerPhone = &phone.String
	}
	if response.Valid {
		rr := model.ReminderResponse(response.String)
		b.ReminderResponse = &rr
	}
	if responseDate.Valid {
		b.ReminderResponseDate = &responseDate.Time
	}
	if intent.Valid {
		b.PaymentIntentID = &intent.String
	}
	if session.Valid {
		b.CheckoutSessionID = &session.String
	}
	return &b, nil
}

func (r *BookingRepo) list(ctx context.Context, q queryer, where string, args ...any) ([]model.Booking, error) {
	rows, err := q.QueryContext(ctx, bookingSelect+" "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func getBooking(ctx context.Context, q queryer, id uint64) (*model.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, bookingSelect+" WHERE b.id = ?", id))
	if err != nil {
		return nil, notFound(err, "booking")
	}
	return b, nil
}

// GetByID returns the booking with its experience title joined.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return getBooking(ctx, r.db, id)
}

// CreateWithCapacity reserves b.NumberOfParticipants on b's date and
// inserts b as pending in one transaction. When the date cannot take the
// participants, nothing is written and apperr.ErrCapacityExceeded is
// returned. On success b is refreshed from the stored row.
func (r *BookingRepo) CreateWithCapacity(ctx context.Context, b *model.Booking, ceiling int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := reserveTx(ctx, tx, b.ExperienceID, b.BookingDate, b.NumberOfParticipants, ceiling); err != nil {
		return err
	}

	const ins = `INSERT INTO bookings (experience_id, experience_title, experience_location, experience_price,
	             booking_date, booking_time, customer_name, customer_email, customer_phone,
	             number_of_participants, total_price, status)
	             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins, b.ExperienceID, b.ExperienceTitle, b.ExperienceLocation, b.ExperiencePrice,
		model.FormatDay(b.BookingDate), b.BookingTime, b.CustomerName, b.CustomerEmail, b.CustomerPhone,
		b.NumberOfParticipants, b.TotalPrice, string(model.StatusPending))
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := getBooking(ctx, tx, uint64(id))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	*b = *stored
	return nil
}

// StatusChange describes a compare-and-set status write.
type StatusChange struct {
	From            model.BookingStatus
	To              model.BookingStatus
	PaymentIntentID *string // stored when non-nil

	// Response, when non-nil, is stored with RespondedAt in the same write.
	// The write then also requires that no answer is stored yet.
	Response    *model.ReminderResponse
	RespondedAt time.Time
}

// UpdateStatus moves booking b from ch.From to ch.To only if it is still in
// ch.From (and still unanswered when ch.Response is set), returning
// ErrStaleState otherwise. Moving into cancelled gives
// the booking's participants back to its date in the same transaction.
func (r *BookingRepo) UpdateStatus(ctx context.Context, b *model.Booking, ch StatusChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := `UPDATE bookings SET status = ?, payment_intent_id = COALESCE(?, payment_intent_id)
		 WHERE id = ? AND status = ?`
	args := []interface{}{string(ch.To), ch.PaymentIntentID, b.ID, string(ch.From)}
	if ch.Response != nil {
		query = `UPDATE bookings SET status = ?, payment_intent_id = COALESCE(?, payment_intent_id),
		 reminder_response = ?, reminder_response_date = ?
		 WHERE id = ? AND status = ? AND reminder_response IS NULL`
		args = []interface{}{string(ch.To), ch.PaymentIntentID, string(*ch.Response), ch.RespondedAt.UTC(), b.ID, string(ch.From)}
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleState
	}
	if ch.To == model.StatusCancelled && ch.From != model.StatusCancelled {
		if err := releaseTx(ctx, tx, b.ExperienceID, b.BookingDate, b.NumberOfParticipants); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// SetCheckoutSession records the processor checkout session of a booking.
func (r *BookingRepo) SetCheckoutSession(ctx context.Context, id uint64, sessionID string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE bookings SET checkout_session_id = ? WHERE id = ?", sessionID, id)
	return err
}

// FindByPaymentIntent resolves a refund or payment event to its booking.
func (r *BookingRepo) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		bookingSelect+" WHERE b.payment_intent_id = ? ORDER BY b.id DESC LIMIT 1", paymentIntentID))
	if err != nil {
		return nil, notFound(err, "booking")
	}
	return b, nil
}

// ListDueReminders returns confirmed bookings on day that have a phone
// number and have not been reminded yet.
func (r *BookingRepo) ListDueReminders(ctx context.Context, day time.Time) ([]model.Booking, error) {
	return r.list(ctx, r.db,
		`WHERE b.booking_date = ? AND b.status = 'confirmed' AND b.reminder_sent = 0
		   AND b.customer_phone IS NOT NULL AND b.customer_phone <> ''
		 ORDER BY b.id`, model.FormatDay(day))
}

// MarkReminderSent flips reminder_sent to true. It reports false when the
// flag was already set, which keeps dispatch at most once per booking.
func (r *BookingRepo) MarkReminderSent(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE bookings SET reminder_sent = 1 WHERE id = ? AND reminder_sent = 0", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// FindLatestConfirmedByPhone returns the most recently created confirmed
// booking for a normalized phone number.
func (r *BookingRepo) FindLatestConfirmedByPhone(ctx context.Context, phone string) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		bookingSelect+` WHERE b.customer_phone = ? AND b.status = 'confirmed'
		 ORDER BY b.created_at DESC, b.id DESC LIMIT 1`, phone))
	if err != nil {
		return nil, notFound(err, "booking")
	}
	return b, nil
}

// SetReminderResponse stores the customer's answer if none is stored yet.
// It reports false when another reply got there first.
func (r *BookingRepo) SetReminderResponse(ctx context.Context, id uint64, resp model.ReminderResponse, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET reminder_response = ?, reminder_response_date = ?
		 WHERE id = ? AND reminder_response IS NULL`,
		string(resp), at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListByExperience returns all bookings of an experience ordered by date.
func (r *BookingRepo) ListByExperience(ctx context.Context, experienceID uint64) ([]model.Booking, error) {
	return r.list(ctx, r.db, "WHERE b.experience_id = ? ORDER BY b.booking_date, b.id", experienceID)
}
