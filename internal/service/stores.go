package service

import (
	"context"
	"time"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/queue"
)

// UserStore is the subset of repository.UserRepo used by the services.
type UserStore interface {
	Create(ctx context.Context, email, password string, role model.Role, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	TouchLastLogin(ctx context.Context, id uint64, at time.Time) error
}

// SessionStore is implemented by repository.SessionRepo.
type SessionStore interface {
	CreateOrRefresh(ctx context.Context, userID uint64, token string, dev model.DeviceInfo, ip string, loc model.Location) (model.Session, error)
	GetByToken(ctx context.Context, token string) (model.Session, model.User, error)
	GetByID(ctx context.Context, id uint64) (model.Session, error)
	ListActive(ctx context.Context, userID uint64) ([]model.Session, error)
	Touch(ctx context.Context, token string) error
	DeleteByToken(ctx context.Context, token string) ([]string, error)
	DeleteByID(ctx context.Context, id uint64) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID uint64) ([]string, error)
	DeleteByDeviceFingerprint(ctx context.Context, userID uint64, dev model.DeviceInfo) ([]string, error)
}

// ResetStore is implemented by repository.PasswordResetRepo.
type ResetStore interface {
	Create(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error
	Redeem(ctx context.Context, tokenHash, passwordHash string) (uint64, error)
}

// EmailPublisher hands outbound email requests to the mail collaborator.
type EmailPublisher interface {
	PublishEmailRequested(ctx context.Context, ev queue.EmailRequestedEvent) error
}

// Actor is the authenticated caller of a session operation.
type Actor struct {
	UserID uint64
	Role   model.Role
}

// IsAdmin reports whether the actor may act on other users' sessions.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }
