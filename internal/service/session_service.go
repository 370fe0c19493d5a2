package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/repository"
	"github.com/iliyamo/gso-inventory-auth/internal/revocation"
)

// SessionService exposes session management to authenticated callers.
// Every deletion revokes the tokens of the removed rows.
type SessionService struct {
	sessions SessionStore
	revoker  revoker
}

func NewSessionService(sessions SessionStore, registry revocation.Registry, tokenTTL time.Duration, log *zap.SugaredLogger) *SessionService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SessionService{
		sessions: sessions,
		revoker:  revoker{registry: registry, ttl: tokenTTL, log: log, now: time.Now},
	}
}

// List returns the caller's live sessions, most recently active first.
func (s *SessionService) List(ctx context.Context, userID uint64) ([]model.Session, error) {
	out, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, persistence("list sessions", err)
	}
	return out, nil
}

// Get returns one session.  Non-admin actors only see their own.
func (s *SessionService) Get(ctx context.Context, actor Actor, id uint64) (model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, persistence("load session", err)
	}
	if sess.UserID != actor.UserID && !actor.IsAdmin() {
		return model.Session{}, ErrForbidden
	}
	return sess, nil
}

// Register binds token to the caller's device.  When the device matches
// the current session and no new location is known this is a plain
// heartbeat; otherwise the row is created or refreshed like on login.  A
// token reported from a different device moves to that device's row and
// the row it came from is dropped, so one token never backs two sessions.
func (s *SessionService) Register(ctx context.Context, actor Actor, current model.Session, token string, dev model.DeviceInfo, ip string, loc model.Location) (model.Session, error) {
	if current.Token == token && current.Device.SameDevice(dev) && loc.Empty() && current.IPAddress == ip {
		if err := s.sessions.Touch(ctx, token); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.Session{}, ErrUnauthenticated
			}
			return model.Session{}, persistence("touch session", err)
		}
		current.LastActivity = time.Now().UTC()
		return current, nil
	}
	sess, err := s.sessions.CreateOrRefresh(ctx, actor.UserID, token, dev, ip, loc)
	if err != nil {
		return model.Session{}, persistence("store session", err)
	}
	return sess, nil
}

// DeleteCurrent ends the session holding token.
func (s *SessionService) DeleteCurrent(ctx context.Context, token string) error {
	deleted, err := s.sessions.DeleteByToken(ctx, token)
	if err != nil {
		return persistence("delete session", err)
	}
	s.revoker.revoke(ctx, append(deleted, token)...)
	return nil
}

// Delete ends the session with the given id.  Non-admin actors may only
// delete their own sessions.
func (s *SessionService) Delete(ctx context.Context, actor Actor, id uint64) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	deleted, err := s.sessions.DeleteByID(ctx, id)
	if err != nil {
		return persistence("delete session", err)
	}
	if len(deleted) == 0 {
		return ErrNotFound
	}
	s.revoker.revoke(ctx, deleted...)
	return nil
}

// DeleteAll ends every session of the user and returns how many were
// removed.
func (s *SessionService) DeleteAll(ctx context.Context, userID uint64) (int, error) {
	deleted, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, persistence("delete sessions", err)
	}
	s.revoker.revoke(ctx, deleted...)
	return len(deleted), nil
}

// DeleteDevice ends the user's sessions for one device fingerprint.
func (s *SessionService) DeleteDevice(ctx context.Context, userID uint64, dev model.DeviceInfo) (int, error) {
	if dev.Platform == "" || dev.Browser == "" {
		return 0, ErrInvalidInput
	}
	deleted, err := s.sessions.DeleteByDeviceFingerprint(ctx, userID, dev)
	if err != nil {
		return 0, persistence("delete sessions", err)
	}
	s.revoker.revoke(ctx, deleted...)
	return len(deleted), nil
}
