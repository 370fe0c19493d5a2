package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/device"
	"github.com/iliyamo/gso-inventory-auth/internal/middleware"
	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/service"
)

// resetRequestedMessage is returned for every reset request so callers
// cannot probe which emails have accounts.
const resetRequestedMessage = "If an account exists for that email, a reset link has been sent."

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth *service.AuthService
	Log  *zap.SugaredLogger
}

func NewAuthHandler(a *service.AuthService, log *zap.SugaredLogger) *AuthHandler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AuthHandler{Auth: a, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // gso_staff | department_rep
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type resetRequestReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type loginResp struct {
	User    userPart    `json:"user"`
	Access  tokenPart   `json:"access"`
	Session sessionView `json:"session"`
}

// Login: verify credentials, bind a token to this device's session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	r := c.Request()
	res, err := h.Auth.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   device.FromHeaders(r.Header),
		IP:       c.RealIP(),
		Location: device.GeoFromHeaders(r.Header),
	})
	if err != nil {
		// Unknown account and wrong password are indistinguishable to clients.
		if errors.Is(err, service.ErrNotFound) {
			err = service.ErrInvalidCredentials
		}
		return writeError(c, h.Log, err)
	}

	c.Set(middleware.CtxUserID, res.User.ID)
	c.Set(middleware.CtxSessionID, res.Session.ID)
	auditDetails(c, map[string]interface{}{
		"platform": res.Session.Device.Platform,
		"browser":  res.Session.Device.Browser,
	})
	return c.JSON(http.StatusOK, loginResp{
		User:    userPart{ID: res.User.ID, Email: res.User.Email, Role: string(res.User.Role)},
		Access:  tokenPart{Token: res.Access.Token, Expires: res.Access.Exp},
		Session: newSessionView(res.Session, res.Session.ID),
	})
}

// Register: create an account.  The client logs in separately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	u, err := h.Auth.Register(c.Request().Context(), req.Email, req.Password, model.Role(req.Role))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	c.Set(middleware.CtxUserID, u.ID)
	auditDetails(c, map[string]interface{}{"role": string(u.Role)})
	return c.JSON(http.StatusCreated, echo.Map{
		"user": userPart{ID: u.ID, Email: u.Email, Role: string(u.Role)},
	})
}

// Logout: end the current session and revoke its token.
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.Auth.Logout(c.Request().Context(), middleware.Token(c)); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me: describe the authenticated caller.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	out := echo.Map{
		"user": userPart{ID: uid, Email: middleware.Email(c), Role: string(middleware.Role(c))},
	}
	if s, ok := middleware.CurrentSession(c); ok {
		out["session"] = newSessionView(s, s.ID)
	}
	return c.JSON(http.StatusOK, out)
}

// RequestPasswordReset: always answers with the same message for a
// well-formed request.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req resetRequestReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.Auth.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": resetRequestedMessage})
}

// ResetPassword: redeem a reset token and set a new password.  Every
// session of the account ends.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	uid, err := h.Auth.ResetPassword(c.Request().Context(), req.Token, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})
		}
		return writeError(c, h.Log, err)
	}
	c.Set(middleware.CtxUserID, uid)
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
