package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gso-inventory-auth/internal/middleware"
	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/revocation"
	"github.com/iliyamo/gso-inventory-auth/internal/service/servicetest"
	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

type brokenRegistry struct{}

func (brokenRegistry) Add(context.Context, string, time.Time) error { return errors.New("down") }
func (brokenRegistry) Contains(context.Context, string) (bool, error) {
	return false, errors.New("down")
}

type authEnv struct {
	users    *servicetest.Users
	sessions *servicetest.Sessions
	registry *revocation.Memory
	tokens   *utils.TokenIssuer
	uid      uint64
	token    string
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	env := &authEnv{
		users:    servicetest.NewUsers(),
		registry: revocation.NewMemory(),
		tokens:   utils.NewTokenIssuer("test-secret", time.Hour),
	}
	env.sessions = servicetest.NewSessions(env.users, 24*time.Hour)
	env.uid = env.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)
	tok, err := env.tokens.Issue(env.uid, string(model.RoleGSOStaff))
	if err != nil {
		t.Fatal(err)
	}
	env.token = tok.Token
	if _, err := env.sessions.CreateOrRefresh(context.Background(), env.uid, tok.Token,
		model.DeviceInfo{Platform: "Windows", Browser: "Chromium"}, "10.0.0.1", model.Location{}); err != nil {
		t.Fatal(err)
	}
	return env
}

func (env *authEnv) do(t *testing.T, registry revocation.Registry, authz string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var seen echo.Context
	h := middleware.Auth(env.tokens, registry, env.sessions, nil)(func(c echo.Context) error {
		seen = c
		return c.NoContent(http.StatusNoContent)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec, seen
}

func TestAuth_Success(t *testing.T) {
	env := newAuthEnv(t)
	rec, c := env.do(t, env.registry, "bearer "+env.token)
	if rec.Code != http.StatusNoContent || c == nil {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if uid, ok := middleware.UserID(c); !ok || uid != env.uid {
		t.Errorf("user id = %d", uid)
	}
	if middleware.Role(c) != model.RoleGSOStaff || middleware.Email(c) != "staff@gso.example.edu" {
		t.Errorf("role/email = %s/%s", middleware.Role(c), middleware.Email(c))
	}
	if middleware.Token(c) != env.token {
		t.Error("raw token not stored")
	}
	if s, ok := middleware.CurrentSession(c); !ok || s.UserID != env.uid {
		t.Errorf("session = %+v", s)
	}
}

func TestAuth_Rejections(t *testing.T) {
	env := newAuthEnv(t)
	expired, _ := utils.NewTokenIssuer("test-secret", time.Hour).
		WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }).
		Issue(env.uid, "gso_staff")
	orphan, _ := env.tokens.Issue(env.uid, "gso_staff")

	revokedEnv := newAuthEnv(t)
	_ = revokedEnv.registry.Add(context.Background(), revokedEnv.token, time.Now().Add(time.Hour))

	inactiveEnv := newAuthEnv(t)
	inactiveEnv.users.SetActive(inactiveEnv.uid, false)

	tests := []struct {
		name     string
		env      *authEnv
		registry revocation.Registry
		authz    string
		wantMsg  string
	}{
		{"no header", env, env.registry, "", "missing bearer token"},
		{"wrong scheme", env, env.registry, "Basic abc", "missing bearer token"},
		{"empty token", env, env.registry, "Bearer   ", "missing bearer token"},
		{"garbage", env, env.registry, "Bearer nope", "invalid token"},
		{"expired", env, env.registry, "Bearer " + expired.Token, "token expired"},
		{"no session", env, env.registry, "Bearer " + orphan.Token, "session not found"},
		{"revoked", revokedEnv, revokedEnv.registry, "Bearer " + revokedEnv.token, "token invalidated"},
		{"registry down", env, brokenRegistry{}, "Bearer " + env.token, "token invalidated"},
		{"inactive user", inactiveEnv, inactiveEnv.registry, "Bearer " + inactiveEnv.token, "session not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, c := tt.env.do(t, tt.registry, tt.authz)
			if c != nil {
				t.Fatal("handler ran")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			body := rec.Body.String()
			if !strings.Contains(body, `"error":"unauthenticated"`) || !strings.Contains(body, tt.wantMsg) {
				t.Errorf("body = %s, want message %q", body, tt.wantMsg)
			}
		})
	}
}

func TestAuth_SessionDeletedAfterIssue(t *testing.T) {
	env := newAuthEnv(t)
	if _, err := env.sessions.DeleteByToken(context.Background(), env.token); err != nil {
		t.Fatal(err)
	}
	rec, c := env.do(t, env.registry, "Bearer "+env.token)
	if c != nil || rec.Code != http.StatusUnauthorized {
		t.Fatalf("deleted session still admitted: %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role model.Role
		want int
	}{
		{model.RoleAdmin, http.StatusOK},
		{model.RoleGSOStaff, http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/admin", nil), rec)
			if tt.role != "" {
				c.Set(middleware.CtxRole, string(tt.role))
			}
			h := middleware.RequireRole(model.RoleAdmin)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
			if err := h(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
