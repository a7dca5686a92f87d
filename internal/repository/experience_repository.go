package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
)

// ExperienceRepo manages persistence for experiences.
type ExperienceRepo struct {
	db *sql.DB
}

// NewExperienceRepo returns a new ExperienceRepo bound to the given database.
func NewExperienceRepo(db *sql.DB) *ExperienceRepo { return &ExperienceRepo{db: db} }

// DB exposes the underlying pool for callers that need their own transaction.
func (r *ExperienceRepo) DB() *sql.DB { return r.db }

const experienceColumns = `id, partner_id, title, description, location, duration, price, category,
       available_dates, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperience(row rowScanner) (*model.Experience, error) {
	var (
		e     model.Experience
		desc  sql.NullString
		rules []byte
	)
	if err := row.Scan(&e.ID, &e.PartnerID, &e.Title, &desc, &e.Location, &e.Duration, &e.Price,
		&e.Category, &rules, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Description = desc.String
	rule, err := model.ParseAvailabilityRule(rules)
	if err != nil {
		return nil, fmt.Errorf("experience %d: %w", e.ID, err)
	}
	e.Availability = rule
	return &e, nil
}

// GetByID returns the experience or an error wrapping apperr.ErrNotFound.
func (r *ExperienceRepo) GetByID(ctx context.Context, id uint64) (*model.Experience, error) {
	e, err := scanExperience(r.db.QueryRowContext(ctx,
		"SELECT "+experienceColumns+" FROM experiences WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "experience")
	}
	return e, nil
}

// GetForPartner returns the experience only when partnerID owns it.
// Experiences owned by someone else yield apperr.ErrForbidden.
func (r *ExperienceRepo) GetForPartner(ctx context.Context, id, partnerID uint64) (*model.Experience, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.PartnerID != partnerID {
		return nil, apperr.ErrForbidden
	}
	return e, nil
}

// ListByPartner returns a partner's experiences, newest first.
func (r *ExperienceRepo) ListByPartner(ctx context.Context, partnerID uint64) ([]model.Experience, error) {
	return r.list(ctx, "WHERE partner_id = ? ORDER BY id DESC", partnerID)
}

// ListActive returns the experiences customers can book, in title order.
// A non-empty category narrows the list to that category.
func (r *ExperienceRepo) ListActive(ctx context.Context, category string) ([]model.Experience, error) {
	if category != "" {
		return r.list(ctx, "WHERE status = ? AND category = ? ORDER BY title, id", model.ExperienceActive, category)
	}
	return r.list(ctx, "WHERE status = ? ORDER BY title, id", model.ExperienceActive)
}

func (r *ExperienceRepo) list(ctx context.Context, where string, args ...any) ([]model.Experience, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+experienceColumns+" FROM experiences "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Experience
	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Create inserts e and populates its ID and timestamps.
func (r *ExperienceRepo) Create(ctx context.Context, e *model.Experience) error {
	rules, err := e.Availability.JSON()
	if err != nil {
		return err
	}
	if e.Status == "" {
		e.Status = model.ExperienceActive
	}
	const q = `INSERT INTO experiences (partner_id, title, description, location, duration, price, category, available_dates, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.PartnerID, e.Title, e.Description, e.Location, e.Duration,
		e.Price, e.Category, string(rules), e.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*e = *created
	return nil
}

// Update overwrites the editable fields of an owned experience. Bookings
// keep their own snapshot of title, price and location.
func (r *ExperienceRepo) Update(ctx context.Context, e *model.Experience) error {
	rules, err := e.Availability.JSON()
	if err != nil {
		return err
	}
	const q = `UPDATE experiences
	           SET title = ?, description = ?, location = ?, duration = ?, price = ?, category = ?, available_dates = ?
	           WHERE id = ? AND partner_id = ?`
	res, err := r.db.ExecContext(ctx, q, e.Title, e.Description, e.Location, e.Duration, e.Price,
		e.Category, string(rules), e.ID, e.PartnerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 for unchanged rows too, so confirm ownership before failing.
		if _, err := r.GetForPartner(ctx, e.ID, e.PartnerID); err != nil {
			return err
		}
	}
	updated, err := r.GetByID(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *updated
	return nil
}

// SetStatus activates or deactivates an owned experience.
func (r *ExperienceRepo) SetStatus(ctx context.Context, id, partnerID uint64, status string) error {
	if _, err := r.GetForPartner(ctx, id, partnerID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, "UPDATE experiences SET status = ? WHERE id = ? AND partner_id = ?",
		status, id, partnerID)
	return err
}

// Delete removes an owned experience that has never been booked. Booked
// experiences must be deactivated instead; they yield apperr.ErrConflict.
func (r *ExperienceRepo) Delete(ctx context.Context, id, partnerID uint64) error {
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

	var owner uint64
	if err := tx.QueryRowContext(ctx, "SELECT partner_id FROM experiences WHERE id = ? FOR UPDATE", id).Scan(&owner); err != nil {
		return notFound(err, "experience")
	}
	if owner != partnerID {
		return apperr.ErrForbidden
	}
	var bookings int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE experience_id = ?", id).Scan(&bookings); err != nil {
		return err
	}
	if bookings > 0 {
		return fmt.Errorf("experience has %d bookings: %w", bookings, apperr.ErrConflict)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM booking_capacity WHERE experience_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM experiences WHERE id = ?", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
