package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,role,is_active,is_deleted,deleted_at,last_login_at,created_at,updated_at"

// Create hashes password, inserts the user and returns its ID.  Emails are
// trimmed but keep their case; the column collation decides uniqueness.
func (r *UserRepo) Create(ctx context.Context, email, password string, role model.Role, cost int) (uint64, error) {
	email = strings.TrimSpace(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, hash, string(role))
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a non-deleted user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND is_deleted=0 LIMIT 1",
		strings.TrimSpace(email))
	u, err := scanUser(row)
	return u, notFound(err)
}

// GetByID fetches a non-deleted user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND is_deleted=0 LIMIT 1", id)
	u, err := scanUser(row)
	return u, notFound(err)
}

// TouchLastLogin records a successful login.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login_at=? WHERE id=?", at.UTC(), id)
	return err
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		role      string
		deletedAt sql.NullTime
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.IsDeleted,
		&deletedAt, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return u, nil
}
