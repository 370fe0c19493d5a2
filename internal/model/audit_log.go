package model

import (
	"encoding/json"
	"time"
)

// AuditLog is an append-only record of a security relevant action.
type AuditLog struct {
	ID        uint64          // audit_logs.id
	UserID    *uint64         // audit_logs.user_id (nil for anonymous actions)
	Action    string          // audit_logs.action
	Details   json.RawMessage // audit_logs.details
	CreatedAt time.Time       // audit_logs.created_at
}

// PasswordReset models an entry in the `password_resets` table.  Only the
// SHA-256 hash of the emailed token is stored.
type PasswordReset struct {
	ID        uint64     // password_resets.id
	UserID    uint64     // password_resets.user_id
	TokenHash string     // password_resets.token_hash
	ExpiresAt time.Time  // password_resets.expires_at
	UsedAt    *time.Time // password_resets.used_at (nullable)
	CreatedAt time.Time  // password_resets.created_at
}
