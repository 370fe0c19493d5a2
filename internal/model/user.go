package model

import "time"

// Role is the authorization role carried by a user and embedded in every
// access token.
type Role string

// Roles recognised by the inventory application.  Business handlers
// authorize on these values through middleware.RequireRole.
const (
	RoleAdmin         Role = "admin"
	RoleGSOStaff      Role = "gso_staff"
	RoleDepartmentRep Role = "department_rep"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleGSOStaff, RoleDepartmentRep:
		return true
	}
	return false
}

// User represents an application user record as stored in the
// `users` table.  The auth core only reads it, except for the
// password hash (reset flow), last_login_at and registration.
//
// Fields:
//
//   - ID: primary key identifier of the user.
//   - Email: unique email address.
//   - PasswordHash: bcrypt hashed password.
//   - Role: admin, gso_staff or department_rep.
//   - IsActive: whether the account may authenticate.
//   - IsDeleted: soft-delete flag; deleted users never authenticate.
//   - DeletedAt: when the user was soft-deleted (nil otherwise).
//   - LastLoginAt: last successful login (nil before the first one).
//   - CreatedAt: timestamp of creation.
//   - UpdatedAt: timestamp of last update.
type User struct {
	ID           uint64     // users.id
	Email        string     // users.email
	PasswordHash string     // users.password_hash
	Role         Role       // users.role
	IsActive     bool       // users.is_active
	IsDeleted    bool       // users.is_deleted
	DeletedAt    *time.Time // users.deleted_at (nullable)
	LastLoginAt  *time.Time // users.last_login_at (nullable)
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}

// CanAuthenticate reports whether the account is allowed to hold a session.
func (u User) CanAuthenticate() bool {
	return u.IsActive && !u.IsDeleted
}
