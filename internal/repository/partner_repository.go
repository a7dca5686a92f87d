package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/utils"
)

// PartnerRepo reads and creates partner accounts.
type PartnerRepo struct{ db *sql.DB }

func NewPartnerRepo(db *sql.DB) *PartnerRepo { return &PartnerRepo{db: db} }

const partnerColumns = "id, name, email, password_hash, role, is_active, created_at, updated_at"

// Create hashes the password and inserts a partner, returning its ID.
// A duplicate email yields apperr.ErrConflict.
func (r *PartnerRepo) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO partners (name, email, password_hash, role) VALUES (?,?,?,?)",
		name, email, hash, role)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, apperr.ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a partner by normalized email.
func (r *PartnerRepo) GetByEmail(ctx context.Context, email string) (*model.Partner, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.get(ctx, "SELECT "+partnerColumns+" FROM partners WHERE email=? LIMIT 1", email)
}

// GetByID fetches a partner by id.
func (r *PartnerRepo) GetByID(ctx context.Context, id uint64) (*model.Partner, error) {
	return r.get(ctx, "SELECT "+partnerColumns+" FROM partners WHERE id=? LIMIT 1", id)
}

func (r *PartnerRepo) get(ctx context.Context, q string, arg any) (*model.Partner, error) {
	var p model.Partner
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Role, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "partner")
	}
	return &p, nil
}
