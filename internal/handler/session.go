package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/device"
	"github.com/iliyamo/gso-inventory-auth/internal/middleware"
	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/service"
)

// SessionHandler serves the /sessions endpoints.  All routes run behind
// middleware.Auth.
type SessionHandler struct {
	Sessions *service.SessionService
	Log      *zap.SugaredLogger
}

func NewSessionHandler(s *service.SessionService, log *zap.SugaredLogger) *SessionHandler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SessionHandler{Sessions: s, Log: log}
}

// sessionView is the client representation of a session.  The token is
// never echoed back.
type sessionView struct {
	ID           uint64           `json:"id"`
	Device       model.DeviceInfo `json:"device"`
	IPAddress    string           `json:"ip_address"`
	Location     *model.Location  `json:"location,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
	ExpiresAt    time.Time        `json:"expires_at"`
	Current      bool             `json:"current"`
}

func newSessionView(s model.Session, currentID uint64) sessionView {
	v := sessionView{
		ID:           s.ID,
		Device:       s.Device,
		IPAddress:    s.IPAddress,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		Current:      s.ID == currentID,
	}
	if !s.Location.Empty() {
		loc := s.Location
		v.Location = &loc
	}
	return v
}

type createSessionReq struct {
	Location *model.Location `json:"location"`
}

type deleteDeviceReq struct {
	Platform string `json:"platform"`
	Browser  string `json:"browser"`
}

func actor(c echo.Context) service.Actor {
	uid, _ := middleware.UserID(c)
	return service.Actor{UserID: uid, Role: middleware.Role(c)}
}

func currentID(c echo.Context) uint64 {
	id, _ := c.Get(middleware.CtxSessionID).(uint64)
	return id
}

func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id != 0
}

// List: GET /sessions
func (h *SessionHandler) List(c echo.Context) error {
	a := actor(c)
	list, err := h.Sessions.List(c.Request().Context(), a.UserID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	cur := currentID(c)
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, newSessionView(s, cur))
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out, "current_session_id": cur})
}

// Get: GET /sessions/:id
func (h *SessionHandler) Get(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	s, err := h.Sessions.Get(c.Request().Context(), actor(c), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newSessionView(s, currentID(c)))
}

// Create: POST /sessions registers the current token for the calling
// device.  An optional body location overrides the proxy headers.
func (h *SessionHandler) Create(c echo.Context) error {
	var req createSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	r := c.Request()
	loc := device.GeoFromHeaders(r.Header)
	if req.Location != nil && !req.Location.Empty() {
		loc = *req.Location
	}
	cur, _ := middleware.CurrentSession(c)
	s, err := h.Sessions.Register(r.Context(), actor(c), cur, middleware.Token(c),
		device.FromHeaders(r.Header), c.RealIP(), loc)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	c.Set(middleware.CtxSessionID, s.ID)
	return c.JSON(http.StatusOK, newSessionView(s, s.ID))
}

// DeleteCurrent: DELETE /sessions/current
func (h *SessionHandler) DeleteCurrent(c echo.Context) error {
	if err := h.Sessions.DeleteCurrent(c.Request().Context(), middleware.Token(c)); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "session ended"})
}

// Delete: DELETE /sessions/:id
func (h *SessionHandler) Delete(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	if err := h.Sessions.Delete(c.Request().Context(), actor(c), id); err != nil {
		return writeError(c, h.Log, err)
	}
	auditDetails(c, map[string]interface{}{"deleted_session_id": id})
	return c.JSON(http.StatusOK, echo.Map{"message": "session ended"})
}

// DeleteAll: DELETE /sessions/all ends every session including this one.
func (h *SessionHandler) DeleteAll(c echo.Context) error {
	a := actor(c)
	n, err := h.Sessions.DeleteAll(c.Request().Context(), a.UserID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	auditDetails(c, map[string]interface{}{"deleted": n})
	return c.JSON(http.StatusOK, echo.Map{"message": "all sessions ended", "deleted": n})
}

// DeleteDevice: DELETE /sessions/device ends the sessions of one device.
// Without a body the calling device is targeted.
func (h *SessionHandler) DeleteDevice(c echo.Context) error {
	var req deleteDeviceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	dev := device.FromHeaders(c.Request().Header)
	if req.Platform != "" || req.Browser != "" {
		dev = model.DeviceInfo{Platform: req.Platform, Browser: req.Browser}
	}
	a := actor(c)
	n, err := h.Sessions.DeleteDevice(c.Request().Context(), a.UserID, dev)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	auditDetails(c, map[string]interface{}{"platform": dev.Platform, "browser": dev.Browser, "deleted": n})
	return c.JSON(http.StatusOK, echo.Map{"message": "device sessions ended", "deleted": n})
}
