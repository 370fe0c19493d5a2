package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

// SessionRepo persists sessions.  It owns the central invariant of the auth
// core: one live row per (user, device fingerprint).
type SessionRepo struct {
	DB  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSessionRepo returns a repository creating sessions that expire ttl
// after creation.
func NewSessionRepo(db *sql.DB, ttl time.Duration) *SessionRepo {
	return &SessionRepo{DB: db, ttl: ttl, now: time.Now}
}

const sessionColumns = "s.id,s.user_id,s.token,s.device_info,s.ip_address,s.location_country,s.location_city,s.location_region,s.created_at,s.last_activity,s.expires_at"

// CreateOrRefresh stores token for the user's device.  When a live session
// for the same (platform, browser) exists its token, last activity and
// network details are rewritten in place; otherwise a new row is inserted.
// A token lives in exactly one row: if it already backs a session of
// another device, that row is removed first.  The user row is locked for
// the duration of the transaction so concurrent logins of one user
// serialize and converge on a single row.
func (r *SessionRepo) CreateOrRefresh(ctx context.Context, userID uint64, token string, dev model.DeviceInfo, ip string, loc model.Location) (model.Session, error) {
	now := r.now().UTC().Truncate(time.Second)
	loc = loc.Truncated()
	ip = model.Clip(ip, model.MaxIPLen)
	hash := utils.HashToken(token)
	info, err := json.Marshal(dev)
	if err != nil {
		return model.Session{}, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Session{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var locked uint64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id=? FOR UPDATE", userID).Scan(&locked); err != nil {
		return model.Session{}, notFound(err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sessions WHERE user_id=? AND token_hash=? AND NOT (device_platform=? AND device_browser=?)",
		userID, hash, dev.Platform, dev.Browser); err != nil {
		return model.Session{}, err
	}

	var (
		id        uint64
		createdAt time.Time
		expiresAt time.Time
		prev      [3]sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at, expires_at, location_country, location_city, location_region FROM sessions
		  WHERE user_id=? AND device_platform=? AND device_browser=? AND expires_at>?
		  ORDER BY last_activity DESC LIMIT 1 FOR UPDATE`,
		userID, dev.Platform, dev.Browser, now).Scan(&id, &createdAt, &expiresAt, &prev[0], &prev[1], &prev[2])
	switch {
	case err == nil:
		// Same device: rewrite the row, keep its identity and expiry.  Known
		// location fields overwrite, unknown ones keep the previous value.
		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET token=?, token_hash=?, device_info=?, ip_address=?,
			        location_country=COALESCE(?, location_country),
			        location_city=COALESCE(?, location_city),
			        location_region=COALESCE(?, location_region),
			        last_activity=?
			  WHERE id=?`,
			token, hash, info, ip, nullStr(loc.Country), nullStr(loc.City), nullStr(loc.Region), now, id)
		if err != nil {
			return model.Session{}, err
		}
		loc = model.Location{Country: prev[0].String, City: prev[1].String, Region: prev[2].String}.Merge(loc)
	case errors.Is(err, sql.ErrNoRows):
		createdAt = now
		expiresAt = now.Add(r.ttl)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (user_id, token, token_hash, device_info, device_platform, device_browser, ip_address,
			        location_country, location_city, location_region, created_at, last_activity, expires_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			userID, token, hash, info, dev.Platform, dev.Browser, ip,
			nullStr(loc.Country), nullStr(loc.City), nullStr(loc.Region), now, now, expiresAt)
		if err != nil {
			return model.Session{}, err
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return model.Session{}, err
		}
		id = uint64(newID)
	default:
		return model.Session{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Session{}, err
	}
	return model.Session{
		ID:           id,
		UserID:       userID,
		Token:        token,
		Device:       dev,
		IPAddress:    ip,
		Location:     loc,
		CreatedAt:    createdAt,
		LastActivity: now,
		ExpiresAt:    expiresAt,
	}, nil
}

// GetByToken returns the live session holding token together with its
// owner.  Expired sessions and sessions of inactive or deleted users are
// reported as ErrNotFound.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (model.Session, model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+", u.email, u.role, u.is_active, u.is_deleted"+
			" FROM sessions s JOIN users u ON u.id = s.user_id"+
			" WHERE s.token_hash=? AND s.expires_at>? AND u.is_active=1 AND u.is_deleted=0 LIMIT 1",
		utils.HashToken(token), r.now().UTC())
	var (
		u    model.User
		role string
	)
	s, err := scanSession(row, &u.Email, &role, &u.IsActive, &u.IsDeleted)
	if err != nil {
		return model.Session{}, model.User{}, notFound(err)
	}
	u.ID = s.UserID
	u.Role = model.Role(role)
	return s, u, nil
}

// GetByID returns the live session with the given id.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (model.Session, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions s WHERE s.id=? AND s.expires_at>? LIMIT 1",
		id, r.now().UTC())
	s, err := scanSession(row)
	return s, notFound(err)
}

// ListActive returns the user's live sessions, most recently active first.
func (r *SessionRepo) ListActive(ctx context.Context, userID uint64) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions s WHERE s.user_id=? AND s.expires_at>? ORDER BY s.last_activity DESC, s.id DESC",
		userID, r.now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Touch bumps last_activity of the live session holding token.
func (r *SessionRepo) Touch(ctx context.Context, token string) error {
	now := r.now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET last_activity=? WHERE token_hash=? AND expires_at>?", now, utils.HashToken(token), now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByToken removes the session holding token and returns the deleted
// tokens (empty when nothing matched).
func (r *SessionRepo) DeleteByToken(ctx context.Context, token string) ([]string, error) {
	return r.deleteWhere(ctx, "token_hash=?", utils.HashToken(token))
}

// DeleteByID removes the session with the given id.
func (r *SessionRepo) DeleteByID(ctx context.Context, id uint64) ([]string, error) {
	return r.deleteWhere(ctx, "id=?", id)
}

// DeleteAllForUser removes every session of the user.
func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID uint64) ([]string, error) {
	return r.deleteWhere(ctx, "user_id=?", userID)
}

// DeleteByDeviceFingerprint removes the user's sessions for one device.
func (r *SessionRepo) DeleteByDeviceFingerprint(ctx context.Context, userID uint64, dev model.DeviceInfo) ([]string, error) {
	return r.deleteWhere(ctx, "user_id=? AND device_platform=? AND device_browser=?", userID, dev.Platform, dev.Browser)
}

// ReapExpired deletes every session past its expiry and returns the count.
func (r *SessionRepo) ReapExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at<=?", r.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// deleteWhere locks the matching rows, collects their tokens so callers can
// revoke them, and deletes them in one transaction.
func (r *SessionRepo) deleteWhere(ctx context.Context, where string, args ...interface{}) ([]string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, "SELECT token FROM sessions WHERE "+where+" FOR UPDATE", args...)
	if err != nil {
		return nil, err
	}
	tokens := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, err
		}
		tokens = append(tokens, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return tokens, nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE "+where, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tokens, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanSession reads sessionColumns followed by any extra destinations.
func scanSession(sc scanner, extra ...interface{}) (model.Session, error) {
	var (
		s                     model.Session
		info                  []byte
		country, city, region sql.NullString
	)
	dest := []interface{}{&s.ID, &s.UserID, &s.Token, &info, &s.IPAddress, &country, &city, &region,
		&s.CreatedAt, &s.LastActivity, &s.ExpiresAt}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return model.Session{}, err
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &s.Device); err != nil {
			return model.Session{}, err
		}
	}
	s.Location = model.Location{Country: country.String, City: city.String, Region: region.String}
	return s, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
