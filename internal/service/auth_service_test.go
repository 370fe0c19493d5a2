package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/revocation"
	"github.com/iliyamo/gso-inventory-auth/internal/service"
	"github.com/iliyamo/gso-inventory-auth/internal/service/servicetest"
	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

type fixture struct {
	users    *servicetest.Users
	sessions *servicetest.Sessions
	resets   *servicetest.Resets
	mailer   *servicetest.Mailer
	registry *revocation.Memory
	tokens   *utils.TokenIssuer
	auth     *service.AuthService
	svc      *service.SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    servicetest.NewUsers(),
		mailer:   &servicetest.Mailer{},
		registry: revocation.NewMemory(),
		tokens:   utils.NewTokenIssuer("test-secret", time.Hour),
	}
	f.sessions = servicetest.NewSessions(f.users, 24*time.Hour)
	f.resets = servicetest.NewResets(f.users)
	f.auth = service.NewAuthService(service.AuthDeps{
		Users:      f.users,
		Sessions:   f.sessions,
		Resets:     f.resets,
		Tokens:     f.tokens,
		Registry:   f.registry,
		Mailer:     f.mailer,
		BcryptCost: 4,
		ResetTTL:   time.Hour,
		BaseURL:    "https://gso.example.edu/",
	})
	f.svc = service.NewSessionService(f.sessions, f.registry, time.Hour, nil)
	return f
}

var chromeWindows = model.DeviceInfo{Platform: "Windows", Browser: "Chromium"}

func (f *fixture) login(t *testing.T, email, password string, dev model.DeviceInfo) service.LoginResult {
	t.Helper()
	res, err := f.auth.Login(context.Background(), service.LoginInput{Email: email, Password: password, Device: dev, IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res
}

func TestLogin_SameDeviceReusesSession(t *testing.T) {
	f := newFixture(t)
	f.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)

	first := f.login(t, "staff@gso.example.edu", "correct-horse", chromeWindows)
	second := f.login(t, "staff@gso.example.edu", "correct-horse", chromeWindows)

	if f.sessions.Count() != 1 {
		t.Fatalf("sessions = %d, want 1", f.sessions.Count())
	}
	if first.Session.ID != second.Session.ID {
		t.Errorf("session id changed: %d -> %d", first.Session.ID, second.Session.ID)
	}
	if first.Access.Token == second.Access.Token {
		t.Fatal("tokens should differ between logins")
	}
	sess, _, err := f.sessions.GetByToken(context.Background(), second.Access.Token)
	if err != nil {
		t.Fatalf("latest token should back the session: %v", err)
	}
	if sess.ID != second.Session.ID {
		t.Errorf("session id = %d, want %d", sess.ID, second.Session.ID)
	}
	if _, _, err := f.sessions.GetByToken(context.Background(), first.Access.Token); err == nil {
		t.Error("previous token should no longer back a session")
	}
}

func TestLogin_DifferentDevicesGetSeparateSessions(t *testing.T) {
	f := newFixture(t)
	f.users.Add("rep@gso.example.edu", "correct-horse", model.RoleDepartmentRep, true)

	f.login(t, "rep@gso.example.edu", "correct-horse", chromeWindows)
	f.login(t, "rep@gso.example.edu", "correct-horse", model.DeviceInfo{Platform: "macOS", Browser: "Safari"})

	if f.sessions.Count() != 2 {
		t.Errorf("sessions = %d, want 2", f.sessions.Count())
	}
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	id := f.users.Add("admin@gso.example.edu", "correct-horse", model.RoleAdmin, true)
	f.users.Add("off@gso.example.edu", "correct-horse", model.RoleGSOStaff, false)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "nobody@gso.example.edu", "correct-horse", service.ErrNotFound},
		{"wrong password", "admin@gso.example.edu", "wrong", service.ErrInvalidCredentials},
		{"inactive account", "off@gso.example.edu", "correct-horse", service.ErrUnauthenticated},
		{"email case is significant", "ADMIN@gso.example.edu", "correct-horse", service.ErrNotFound},
		{"empty input", "", "", service.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Login(context.Background(), service.LoginInput{Email: tt.email, Password: tt.password, Device: chromeWindows})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if f.sessions.Count() != 0 {
		t.Errorf("failed logins created %d sessions", f.sessions.Count())
	}

	// Surrounding whitespace is trimmed.
	if _, err := f.auth.Login(context.Background(), service.LoginInput{Email: "  admin@gso.example.edu ", Password: "correct-horse", Device: chromeWindows}); err != nil {
		t.Fatalf("trimmed email login: %v", err)
	}
	u, _ := f.users.GetByID(context.Background(), id)
	if u.LastLoginAt == nil {
		t.Error("last login should be recorded")
	}
}

func TestLogin_SessionStoreFailureFailsLogin(t *testing.T) {
	f := newFixture(t)
	f.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)
	f.sessions.Err = servicetest.ErrStore

	_, err := f.auth.Login(context.Background(), service.LoginInput{Email: "staff@gso.example.edu", Password: "correct-horse", Device: chromeWindows})
	if !errors.Is(err, service.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if f.users.PasswordHash(1) == "" {
		t.Fatal("user should still exist")
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	f := newFixture(t)
	f.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)
	res := f.login(t, "staff@gso.example.edu", "correct-horse", chromeWindows)

	if err := f.auth.Logout(context.Background(), res.Access.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if f.sessions.Count() != 0 {
		t.Errorf("sessions = %d, want 0", f.sessions.Count())
	}
	revoked, _ := f.registry.Contains(context.Background(), res.Access.Token)
	if !revoked {
		t.Error("token should be revoked after logout")
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	u, err := f.auth.Register(context.Background(), " new@gso.example.edu ", "long-enough", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Role != model.RoleDepartmentRep || u.Email != "new@gso.example.edu" {
		t.Errorf("user = %+v", u)
	}

	tests := []struct {
		name  string
		email string
		pass  string
		role  model.Role
		want  error
	}{
		{"duplicate", "new@gso.example.edu", "long-enough", "", service.ErrEmailExists},
		{"short password", "x@gso.example.edu", "short", "", service.ErrInvalidInput},
		{"bad email", "not-an-email", "long-enough", "", service.ErrInvalidInput},
		{"unknown role", "y@gso.example.edu", "long-enough", "owner", service.ErrInvalidInput},
		{"admin self-assign", "z@gso.example.edu", "long-enough", model.RoleAdmin, service.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.auth.Register(context.Background(), tt.email, tt.pass, tt.role); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)
	if err := f.auth.RequestPasswordReset(context.Background(), "ghost@gso.example.edu"); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	f.auth.Wait()
	if f.resets.Count() != 0 {
		t.Errorf("reset tokens = %d, want 0", f.resets.Count())
	}
	if n := len(f.mailer.Sent()); n != 0 {
		t.Errorf("emails = %d, want 0", n)
	}
}

func TestPasswordReset_EndToEnd(t *testing.T) {
	f := newFixture(t)
	id := f.users.Add("staff@gso.example.edu", "old-password", model.RoleGSOStaff, true)
	laptop := f.login(t, "staff@gso.example.edu", "old-password", chromeWindows)
	phone := f.login(t, "staff@gso.example.edu", "old-password", model.DeviceInfo{Platform: "macOS", Browser: "Safari"})

	if err := f.auth.RequestPasswordReset(context.Background(), "staff@gso.example.edu"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	f.auth.Wait()
	sent := f.mailer.Sent()
	if len(sent) != 1 {
		t.Fatalf("emails = %d, want 1", len(sent))
	}
	ev := sent[0]
	const prefix = "https://gso.example.edu/reset-password?token="
	if !strings.HasPrefix(ev.Link, prefix) || ev.To != "staff@gso.example.edu" || ev.UserID != id {
		t.Fatalf("event = %+v", ev)
	}
	raw := strings.TrimPrefix(ev.Link, prefix)

	uid, err := f.auth.ResetPassword(context.Background(), raw, "new-password")
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if uid != id {
		t.Errorf("uid = %d, want %d", uid, id)
	}
	if !utils.VerifyPassword(f.users.PasswordHash(id), "new-password") {
		t.Error("password not updated")
	}
	if f.sessions.Count() != 0 {
		t.Errorf("sessions = %d, want 0 after reset", f.sessions.Count())
	}
	for _, tok := range []string{laptop.Access.Token, phone.Access.Token} {
		if ok, _ := f.registry.Contains(context.Background(), tok); !ok {
			t.Error("pre-reset token should be revoked")
		}
	}

	// Single use.
	if _, err := f.auth.ResetPassword(context.Background(), raw, "another-password"); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("second redeem err = %v, want ErrNotFound", err)
	}
}

func TestPasswordReset_MailerFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.users.Add("staff@gso.example.edu", "old-password", model.RoleGSOStaff, true)
	f.mailer.Err = errors.New("broker down")

	if err := f.auth.RequestPasswordReset(context.Background(), "staff@gso.example.edu"); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if f.resets.Count() != 1 {
		t.Errorf("reset tokens = %d, want 1", f.resets.Count())
	}
	f.auth.Wait()
}

func TestRequestPasswordReset_DoesNotWaitForMailer(t *testing.T) {
	f := newFixture(t)
	f.users.Add("staff@gso.example.edu", "old-password", model.RoleGSOStaff, true)
	f.mailer.Block = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.auth.RequestPasswordReset(context.Background(), "staff@gso.example.edu") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RequestPasswordReset blocked on the mailer")
	}
	if n := len(f.mailer.Sent()); n != 0 {
		t.Errorf("emails before release = %d, want 0", n)
	}

	close(f.mailer.Block)
	f.auth.Wait()
	if n := len(f.mailer.Sent()); n != 1 {
		t.Errorf("emails after release = %d, want 1", n)
	}
}
