package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"wabot/pkg/logx"
)

const maxMessageLen = 4096

// formBool accepts JSON booleans and HTML checkbox values ("on").
type formBool bool

func (b *formBool) UnmarshalParam(v string) error {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes", "1", "true":
		*b = true
	case "", "off", "no", "0", "false":
		*b = false
	default:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*b = formBool(parsed)
	}
	return nil
}

func (b *formBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*b = false
		return nil
	}
	return b.UnmarshalParam(s)
}

type settingsRequest struct {
	Message  string   `json:"message" form:"message"`
	IsActive formBool `json:"isActive" form:"isActive"`
}

func errorBody(msg string) map[string]string { return map[string]string{"error": msg} }

func (s *Server) handleGetSettings(c echo.Context) error {
	st, err := s.ctrl.GetCurrentSettings(c.Request().Context())
	if err != nil {
		s.log.Error("reading settings failed", logx.Err(err))
		return c.JSON(http.StatusInternalServerError, errorBody("failed to read settings"))
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleUpdateSettings(c echo.Context) error {
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid settings payload"))
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLen {
		return c.JSON(http.StatusBadRequest, errorBody("message too long"))
	}

	st, err := s.ctrl.UpdateSettings(c.Request().Context(), req.Message, bool(req.IsActive))
	if err != nil {
		s.log.Error("updating settings failed", logx.Err(err))
		return c.JSON(http.StatusInternalServerError, errorBody("failed to update settings"))
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleLogout(c echo.Context) error {
	if err := s.ctrl.Logout(c.Request().Context()); err != nil {
		s.log.Error("logout failed", logx.Err(err))
		return c.JSON(http.StatusInternalServerError, errorBody("logout failed"))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "logged-out"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleHealth(c echo.Context) error {
	body := map[string]any{
		"status":  "ok",
		"session": s.ctrl.Status().State,
	}
	if s.health != nil {
		body["runtime"] = s.health()
	}
	return c.JSON(http.StatusOK, body)
}
