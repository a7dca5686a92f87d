package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
)

// CapacityRepo reads the per-(experience, date) counters in
// booking_capacity. The counters are written only by BookingRepo, inside
// the same transaction as the booking row they account for.
type CapacityRepo struct {
	db *sql.DB
}

func NewCapacityRepo(db *sql.DB) *CapacityRepo { return &CapacityRepo{db: db} }

// Reserved returns the participants held on one date. Dates without a
// counter row have nothing reserved.
func (r *CapacityRepo) Reserved(ctx context.Context, experienceID uint64, day time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT reserved FROM booking_capacity WHERE experience_id = ? AND booking_date = ?",
		experienceID, model.FormatDay(day)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// ReservedBetween returns reserved participants keyed by YYYY-MM-DD for
// every date in [from, to] that has a counter row.
func (r *CapacityRepo) ReservedBetween(ctx context.Context, experienceID uint64, from, to time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT booking_date, reserved FROM booking_capacity
		 WHERE experience_id = ? AND booking_date >= ? AND booking_date <= ?`,
		experienceID, model.FormatDay(from), model.FormatDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			day      time.Time
			reserved int
		)
		if err := rows.Scan(&day, &reserved); err != nil {
			return nil, err
		}
		out[model.FormatDay(day)] = reserved
	}
	return out, rows.Err()
}

// Rebuild recomputes every counter from the bookings table and applies the
// current ceiling to all of them. It is run at startup so databases that
// predate the counter table, or a changed ceiling, start consistent. Dates
// whose bookings are all cancelled end up with nothing reserved.
func (r *CapacityRepo) Rebuild(ctx context.Context, ceiling int) error {
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

	if _, err := tx.ExecContext(ctx, "UPDATE booking_capacity SET reserved = 0, capacity = ?", ceiling); err != nil {
		return fmt.Errorf("reset capacity: %w", err)
	}
	const q = `INSERT INTO booking_capacity (experience_id, booking_date, capacity, reserved)
	           SELECT experience_id, booking_date, ?, SUM(number_of_participants)
	           FROM bookings WHERE status <> 'cancelled'
	           GROUP BY experience_id, booking_date
	           ON DUPLICATE KEY UPDATE reserved = VALUES(reserved), capacity = VALUES(capacity)`
	if _, err := tx.ExecContext(ctx, q, ceiling); err != nil {
		return fmt.Errorf("recount capacity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// reserveTx atomically adds n participants to the counter for (experience,
// day) if the ceiling allows it. The counter row is created on first use.
// No matching update means the date is full.
func reserveTx(ctx context.Context, tx *sql.Tx, experienceID uint64, day time.Time, n, ceiling int) error {
	key := model.FormatDay(day)
	if _, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO booking_capacity (experience_id, booking_date, capacity, reserved) VALUES (?, ?, ?, 0)",
		experienceID, key, ceiling); err != nil {
		return fmt.Errorf("ensure capacity row: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE booking_capacity SET reserved = reserved + ?
		 WHERE experience_id = ? AND booking_date = ? AND reserved + ? <= capacity`,
		n, experienceID, key, n)
	if err != nil {
		return fmt.Errorf("reserve capacity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.ErrCapacityExceeded
	}
	return nil
}

// releaseTx gives n participants back to the date. The counter never goes
// below zero.
func releaseTx(ctx context.Context, tx *sql.Tx, experienceID uint64, day time.Time, n int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE booking_capacity SET reserved = IF(reserved >= ?, reserved - ?, 0)
		 WHERE experience_id = ? AND booking_date = ?`,
		n, n, experienceID, model.FormatDay(day))
	if err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	return nil
}
