package model

import "time"

// Partner is an affiliate partner account as stored in the `partners`
// table. Partners own experiences; ADMIN partners may additionally run
// operational endpoints such as the manual reminder sweep.
//
// Fields:
//
//	ID           – primary key identifier.
//	Name         – company or display name.
//	Email        – unique login email, lower-cased.
//	PasswordHash – bcrypt hash.
//	Role         – PARTNER or ADMIN.
//	IsActive     – inactive partners cannot log in.
type Partner struct {
	ID           uint64    // partners.id
	Name         string    // partners.name
	Email        string    // partners.email
	PasswordHash string    // partners.password_hash
	Role         string    // partners.role
	IsActive     bool      // partners.is_active
	CreatedAt    time.Time // partners.created_at
	UpdatedAt    time.Time // partners.updated_at
}

const (
	RolePartner = "PARTNER"
	RoleAdmin   = "ADMIN"
)
