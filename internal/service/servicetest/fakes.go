// Package servicetest provides in-memory implementations of the service
// stores for tests.  They follow the repositories' semantics closely
// enough to exercise session deduplication and revocation end to end.
package servicetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/queue"
	"github.com/iliyamo/gso-inventory-auth/internal/repository"
)

// Users is an in-memory UserStore.
type Users struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.User
}

func NewUsers() *Users { return &Users{byID: make(map[uint64]*model.User)} }

// Add stores a user with a hashed password and returns its id.  It hashes
// at bcrypt's minimum cost, below the production floor, to keep tests fast.
func (r *Users) Add(email, password string, role model.Role, active bool) uint64 {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	hash := string(b)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.byID[r.nextID] = &model.User{ID: r.nextID, Email: email, PasswordHash: hash, Role: role, IsActive: active}
	return r.nextID
}

// SetActive flips the account's active flag.
func (r *Users) SetActive(id uint64, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.IsActive = active
	}
}

// PasswordHash returns the stored hash of the user.
func (r *Users) PasswordHash(id uint64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		return u.PasswordHash
	}
	return ""
}

func (r *Users) Create(ctx context.Context, email, password string, role model.Role, cost int) (uint64, error) {
	r.mu.Lock()
	for _, u := range r.byID {
		if u.Email == email {
			r.mu.Unlock()
			return 0, repository.ErrEmailExists
		}
	}
	r.mu.Unlock()
	return r.Add(email, password, role, true), nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email && !u.IsDeleted {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (r *Users) GetByID(ctx context.Context, id uint64) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok && !u.IsDeleted {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (r *Users) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		t := at
		u.LastLoginAt = &t
	}
	return nil
}

func (r *Users) setPassword(id uint64, hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if ok {
		u.PasswordHash = hash
	}
	return ok
}

// Sessions is an in-memory SessionStore keeping one live row per
// (user, platform, browser).
type Sessions struct {
	mu     sync.Mutex
	users  *Users
	ttl    time.Duration
	nextID uint64
	rows   map[uint64]*model.Session
	Now    func() time.Time
	Err    error // returned by every call when set
}

func NewSessions(users *Users, ttl time.Duration) *Sessions {
	return &Sessions{users: users, ttl: ttl, rows: make(map[uint64]*model.Session), Now: time.Now}
}

// Count returns the number of stored rows, live or expired.
func (s *Sessions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Sessions) CreateOrRefresh(ctx context.Context, userID uint64, token string, dev model.DeviceInfo, ip string, loc model.Location) (model.Session, error) {
	if s.Err != nil {
		return model.Session{}, s.Err
	}
	now := s.Now()
	loc = loc.Truncated()
	ip = model.Clip(ip, model.MaxIPLen)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, row := range s.rows {
		if row.UserID == userID && row.Token == token && !row.Device.SameDevice(dev) {
			delete(s.rows, id)
		}
	}
	for _, row := range s.rows {
		if row.UserID == userID && row.Device.SameDevice(dev) && row.Live(now) {
			row.Token = token
			row.Device = dev
			row.IPAddress = ip
			row.Location = row.Location.Merge(loc)
			row.LastActivity = now
			return *row, nil
		}
	}
	s.nextID++
	row := &model.Session{
		ID: s.nextID, UserID: userID, Token: token, Device: dev, IPAddress: ip, Location: loc,
		CreatedAt: now, LastActivity: now, ExpiresAt: now.Add(s.ttl),
	}
	s.rows[row.ID] = row
	return *row, nil
}

func (s *Sessions) GetByToken(ctx context.Context, token string) (model.Session, model.User, error) {
	if s.Err != nil {
		return model.Session{}, model.User{}, s.Err
	}
	now := s.Now()
	s.mu.Lock()
	var found *model.Session
	for _, row := range s.rows {
		if row.Token == token && row.Live(now) {
			found = row
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return model.Session{}, model.User{}, repository.ErrNotFound
	}
	u, err := s.users.GetByID(ctx, found.UserID)
	if err != nil || !u.CanAuthenticate() {
		return model.Session{}, model.User{}, repository.ErrNotFound
	}
	return *found, u, nil
}

func (s *Sessions) GetByID(ctx context.Context, id uint64) (model.Session, error) {
	if s.Err != nil {
		return model.Session{}, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok && row.Live(s.Now()) {
		return *row, nil
	}
	return model.Session{}, repository.ErrNotFound
}

func (s *Sessions) ListActive(ctx context.Context, userID uint64) ([]model.Session, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Session{}
	for _, row := range s.rows {
		if row.UserID == userID && row.Live(now) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (s *Sessions) Touch(ctx context.Context, token string) error {
	if s.Err != nil {
		return s.Err
	}
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Token == token && row.Live(now) {
			row.LastActivity = now
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *Sessions) deleteWhere(match func(*model.Session) bool) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := []string{}
	for id, row := range s.rows {
		if match(row) {
			tokens = append(tokens, row.Token)
			delete(s.rows, id)
		}
	}
	return tokens, nil
}

func (s *Sessions) DeleteByToken(ctx context.Context, token string) ([]string, error) {
	return s.deleteWhere(func(r *model.Session) bool { return r.Token == token })
}

func (s *Sessions) DeleteByID(ctx context.Context, id uint64) ([]string, error) {
	return s.deleteWhere(func(r *model.Session) bool { return r.ID == id })
}

func (s *Sessions) DeleteAllForUser(ctx context.Context, userID uint64) ([]string, error) {
	return s.deleteWhere(func(r *model.Session) bool { return r.UserID == userID })
}

func (s *Sessions) DeleteByDeviceFingerprint(ctx context.Context, userID uint64, dev model.DeviceInfo) ([]string, error) {
	return s.deleteWhere(func(r *model.Session) bool { return r.UserID == userID && r.Device.SameDevice(dev) })
}

func (s *Sessions) ReapExpired(ctx context.Context) (int64, error) {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, row := range s.rows {
		if !row.Live(now) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

type resetRow struct {
	userID    uint64
	expiresAt time.Time
	used      bool
}

// Resets is an in-memory ResetStore.
type Resets struct {
	mu    sync.Mutex
	users *Users
	rows  map[string]*resetRow
	Now   func() time.Time
}

func NewResets(users *Users) *Resets {
	return &Resets{users: users, rows: make(map[string]*resetRow), Now: time.Now}
}

// Count returns the number of stored reset tokens.
func (r *Resets) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *Resets) Create(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.userID == userID {
			row.used = true
		}
	}
	r.rows[tokenHash] = &resetRow{userID: userID, expiresAt: expiresAt}
	return nil
}

func (r *Resets) Redeem(ctx context.Context, tokenHash, passwordHash string) (uint64, error) {
	r.mu.Lock()
	row, ok := r.rows[tokenHash]
	if !ok || row.used || !r.Now().Before(row.expiresAt) {
		r.mu.Unlock()
		return 0, repository.ErrNotFound
	}
	row.used = true
	r.mu.Unlock()
	if !r.users.setPassword(row.userID, passwordHash) {
		return 0, repository.ErrNotFound
	}
	return row.userID, nil
}

// Mailer records published email events.
type Mailer struct {
	mu     sync.Mutex
	Events []queue.EmailRequestedEvent
	Err    error
	// Block, when set, holds every publish until it is closed or the
	// publish context ends.
	Block chan struct{}
}

func (m *Mailer) PublishEmailRequested(ctx context.Context, ev queue.EmailRequestedEvent) error {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, ev)
	return nil
}

// Sent returns a copy of the published events.
func (m *Mailer) Sent() []queue.EmailRequestedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.EmailRequestedEvent(nil), m.Events...)
}

// ErrStore is a generic store failure for error path tests.
var ErrStore = errors.New("store unavailable")
