package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/service"
)

// AuditLister is satisfied by *repository.AuditRepo.
type AuditLister interface {
	ListForUser(ctx context.Context, userID uint64, limit int) ([]model.AuditLog, error)
}

// AdminHandler lets administrators inspect and end other users' sessions.
// Routes run behind middleware.Auth and RequireRole(admin).
type AdminHandler struct {
	Sessions *service.SessionService
	Audit    AuditLister
	Log      *zap.SugaredLogger
}

func NewAdminHandler(s *service.SessionService, a AuditLister, log *zap.SugaredLogger) *AdminHandler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AdminHandler{Sessions: s, Audit: a, Log: log}
}

type auditView struct {
	ID        uint64          `json:"id"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	CreatedAt string          `json:"created_at"`
}

func targetUser(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id != 0
}

// UserSessions: GET /admin/users/:id/sessions
func (h *AdminHandler) UserSessions(c echo.Context) error {
	uid, ok := targetUser(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	list, err := h.Sessions.List(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	cur := currentID(c)
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, newSessionView(s, cur))
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "sessions": out})
}

// EndUserSessions: DELETE /admin/users/:id/sessions forces a user out of
// every device.
func (h *AdminHandler) EndUserSessions(c echo.Context) error {
	uid, ok := targetUser(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	n, err := h.Sessions.DeleteAll(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	auditDetails(c, map[string]interface{}{"target_user_id": uid, "deleted": n})
	return c.JSON(http.StatusOK, echo.Map{"message": "all sessions ended", "deleted": n})
}

// UserAudit: GET /admin/users/:id/audit?limit=N
func (h *AdminHandler) UserAudit(c echo.Context) error {
	uid, ok := targetUser(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	entries, err := h.Audit.ListForUser(c.Request().Context(), uid, limit)
	if err != nil {
		h.Log.Errorw("audit list failed", "user_id", uid, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{
			ID:        e.ID,
			Action:    e.Action,
			Details:   e.Details,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "entries": out})
}
