package repository

import (
	"context"
	"database/sql"
	"time"
)

// PasswordResetRepo stores hashed single-use reset tokens.
type PasswordResetRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewPasswordResetRepo(db *sql.DB) *PasswordResetRepo {
	return &PasswordResetRepo{DB: db, now: time.Now}
}

// Create stores tokenHash for the user.  Outstanding tokens of the same user
// are marked used so only the newest link works.
func (r *PasswordResetRepo) Create(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error {
	now := r.now().UTC()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE password_resets SET used_at=? WHERE user_id=? AND used_at IS NULL", now, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO password_resets (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)",
		userID, tokenHash, expiresAt.UTC(), now); err != nil {
		return err
	}
	return tx.Commit()
}

// Redeem consumes the token identified by tokenHash and stores the new
// password hash in the same transaction.  Unknown, used and expired tokens
// yield ErrNotFound.
func (r *PasswordResetRepo) Redeem(ctx context.Context, tokenHash, passwordHash string) (uint64, error) {
	now := r.now().UTC()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id     uint64
		userID uint64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT id, user_id FROM password_resets WHERE token_hash=? AND used_at IS NULL AND expires_at>? LIMIT 1 FOR UPDATE",
		tokenHash, now).Scan(&id, &userID)
	if err != nil {
		return 0, notFound(err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE password_resets SET used_at=? WHERE id=?", now, id); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=? AND is_deleted=0", passwordHash, userID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return userID, nil
}
