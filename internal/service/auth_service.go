package service

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/queue"
	"github.com/iliyamo/gso-inventory-auth/internal/repository"
	"github.com/iliyamo/gso-inventory-auth/internal/revocation"
	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

// resetTokenBytes is the entropy of a password reset token.
const resetTokenBytes = 32

// mailTimeout bounds one hand-off of a reset email to the broker.
const mailTimeout = 10 * time.Second

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users      UserStore
	Sessions   SessionStore
	Resets     ResetStore
	Tokens     *utils.TokenIssuer
	Registry   revocation.Registry
	Mailer     EmailPublisher
	Log        *zap.SugaredLogger
	BcryptCost int
	ResetTTL   time.Duration
	BaseURL    string
}

// AuthService implements login, logout, registration and the password
// reset flow.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	resets   ResetStore
	tokens   *utils.TokenIssuer
	mailer   EmailPublisher
	log      *zap.SugaredLogger
	cost     int
	resetTTL time.Duration
	baseURL  string
	revoker  revoker
	now      func() time.Time
	mailWG   sync.WaitGroup
}

func NewAuthService(d AuthDeps) *AuthService {
	log := d.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	resetTTL := d.ResetTTL
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	s := &AuthService{
		users:    d.Users,
		sessions: d.Sessions,
		resets:   d.Resets,
		tokens:   d.Tokens,
		mailer:   d.Mailer,
		log:      log,
		cost:     d.BcryptCost,
		resetTTL: resetTTL,
		baseURL:  strings.TrimRight(d.BaseURL, "/"),
		now:      time.Now,
	}
	s.revoker = revoker{registry: d.Registry, ttl: d.Tokens.TTL(), log: log, now: s.now}
	return s
}

// LoginInput carries the credentials and the client context of a login.
type LoginInput struct {
	Email    string
	Password string
	Device   model.DeviceInfo
	IP       string
	Location model.Location
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	User    model.User
	Session model.Session
	Access  utils.AccessToken
}

// VerifyCredentials checks email and password.  Unknown or deleted users
// yield ErrNotFound, a wrong password ErrInvalidCredentials and an inactive
// account ErrUnauthenticated.  The password is checked before the account
// state so the response does not reveal whether a disabled account exists.
func (s *AuthService) VerifyCredentials(ctx context.Context, email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.User{}, ErrInvalidInput
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, persistence("load user", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, ErrInvalidCredentials
	}
	if !u.CanAuthenticate() {
		return model.User{}, ErrUnauthenticated
	}
	return u, nil
}

// Login verifies the credentials, issues an access token and binds it to
// the session of the calling device.  Logging in again from the same
// device replaces the token on the existing session, which makes the
// previous token fail the session check.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	u, err := s.VerifyCredentials(ctx, in.Email, in.Password)
	if err != nil {
		return LoginResult{}, err
	}
	access, err := s.tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return LoginResult{}, err
	}
	sess, err := s.sessions.CreateOrRefresh(ctx, u.ID, access.Token, in.Device, in.IP, in.Location)
	if err != nil {
		return LoginResult{}, persistence("store session", err)
	}
	if err := s.users.TouchLastLogin(ctx, u.ID, s.now()); err != nil {
		s.log.Warnw("last login update failed", "user_id", u.ID, "error", err)
	}
	return LoginResult{User: u, Session: sess, Access: access}, nil
}

// Register creates a new account.  An empty role defaults to
// department_rep; the admin role cannot be self-assigned.
func (s *AuthService) Register(ctx context.Context, email, password string, role model.Role) (model.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || utils.CheckPassword(password) != nil {
		return model.User{}, ErrInvalidInput
	}
	if role == "" {
		role = model.RoleDepartmentRep
	}
	if !role.Valid() {
		return model.User{}, ErrInvalidInput
	}
	if role == model.RoleAdmin {
		return model.User{}, ErrForbidden
	}
	id, err := s.users.Create(ctx, email, password, role, s.cost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, persistence("create user", err)
	}
	now := s.now().UTC()
	return model.User{ID: id, Email: email, Role: role, IsActive: true, CreatedAt: now, UpdatedAt: now}, nil
}

// Logout deletes the session holding token and revokes the token.  The
// token is revoked even when no session row matched.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	deleted, err := s.sessions.DeleteByToken(ctx, token)
	if err != nil {
		return persistence("delete session", err)
	}
	s.revoker.revoke(ctx, append(deleted, token)...)
	return nil
}

// RequestPasswordReset issues a reset token for email and hands the reset
// link to the mailer.  Unknown, deleted and inactive accounts are silently
// ignored so the caller always sees the same outcome.  The hand-off runs in
// the background so the broker round trip does not show in the response
// time of known accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidInput
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return persistence("load user", err)
	}
	if !u.CanAuthenticate() {
		return nil
	}

	raw, err := utils.RandomHex(resetTokenBytes)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.resets.Create(ctx, u.ID, utils.HashToken(raw), now.Add(s.resetTTL)); err != nil {
		return persistence("store reset token", err)
	}

	if s.mailer == nil {
		return nil
	}
	ev := queue.EmailRequestedEvent{
		Template:    queue.TemplatePasswordReset,
		To:          u.Email,
		Subject:     "Reset your password",
		Link:        s.baseURL + "/reset-password?token=" + url.QueryEscape(raw),
		UserID:      u.ID,
		RequestedAt: now.Format(time.RFC3339),
	}
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		// The token is stored; a failed hand-off only costs the user a retry.
		if err := s.mailer.PublishEmailRequested(ctx, ev); err != nil {
			s.log.Warnw("reset email hand-off failed", "user_id", u.ID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every pending reset email hand-off has finished.
func (s *AuthService) Wait() {
	s.mailWG.Wait()
}

// ResetPassword redeems a reset token, stores the new password and ends
// every session of the user.  It returns the affected user id.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) (uint64, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" || utils.CheckPassword(newPassword) != nil {
		return 0, ErrInvalidInput
	}
	hash, err := utils.HashPassword(newPassword, s.cost)
	if err != nil {
		return 0, err
	}
	userID, err := s.resets.Redeem(ctx, utils.HashToken(rawToken), hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, persistence("redeem reset token", err)
	}
	deleted, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return userID, persistence("delete sessions", err)
	}
	s.revoker.revoke(ctx, deleted...)
	return userID, nil
}
