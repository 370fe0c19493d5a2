package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
)

// AuditRepo appends rows to audit_logs.  Rows are never updated.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Create inserts one audit entry.  A nil UserID stores NULL, used for
// failed logins of unknown accounts.
func (r *AuditRepo) Create(ctx context.Context, entry model.AuditLog) error {
	var uid sql.NullInt64
	if entry.UserID != nil {
		uid = sql.NullInt64{Int64: int64(*entry.UserID), Valid: true}
	}
	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	at := entry.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_logs (user_id, action, details, created_at) VALUES (?,?,?,?)",
		uid, entry.Action, []byte(details), at.UTC())
	return err
}

// ListForUser returns the user's most recent audit entries, newest first.
func (r *AuditRepo) ListForUser(ctx context.Context, userID uint64, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_id, action, details, created_at FROM audit_logs WHERE user_id=? ORDER BY id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AuditLog{}
	for rows.Next() {
		var (
			e       model.AuditLog
			uid     sql.NullInt64
			details []byte
		)
		if err := rows.Scan(&e.ID, &uid, &e.Action, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if uid.Valid {
			v := uint64(uid.Int64)
			e.UserID = &v
		}
		e.Details = json.RawMessage(details)
		out = append(out, e)
	}
	return out, rows.Err()
}
