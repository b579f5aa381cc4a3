package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/exthost/exthost/internal/extensions"
	"github.com/exthost/exthost/internal/version"
)

// StatusResponse represents the server status.
type StatusResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Extensions int    `json:"extensions"`
	Enabled    int    `json:"enabled"`
	GoVersion  string `json:"goVersion"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
}

// ExtensionInfo is the API view of a loaded extension.
type ExtensionInfo struct {
	Name        string `json:"name"`
	Entrypoint  string `json:"entrypoint"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Type        string `json:"type"`
	Enabled     bool   `json:"enabled"`
	Installed   bool   `json:"installed"`
}

// ExtensionListResponse is the body of GET /api/extensions.
type ExtensionListResponse struct {
	Extensions []ExtensionInfo `json:"extensions"`
	Total      int             `json:"total"`
}

// StateRequest is the body of POST /api/extensions/:name/state.
type StateRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// requestValidator implements Echo's Validator interface.
type requestValidator struct {
	validate *validator.Validate
}

// NewCustomValidator creates the validator used for request bodies.
// Errors name fields by their JSON name.
func NewCustomValidator() echo.Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

// Validate validates the request body.
func (rv *requestValidator) Validate(i interface{}) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed on '%s'", fe.Field(), fe.Tag()))
		}
		return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"name":    "exthost",
		"version": version.Version,
		"status":  "running",
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(c echo.Context) error {
	list := s.manager.List()
	enabled := 0
	for _, ext := range list {
		if s.manager.IsEnabled(ext.Meta().Name()) {
			enabled++
		}
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Status:     "running",
		Version:    version.Version,
		Uptime:     s.Uptime().Round(time.Second).String(),
		Extensions: len(list),
		Enabled:    enabled,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	})
}

func (s *Server) extensionInfo(ext extensions.Extension) ExtensionInfo {
	d := ext.Meta()
	return ExtensionInfo{
		Name:        d.Name(),
		Entrypoint:  d.Entrypoint(),
		Author:      d.Author(),
		Description: d.Description(),
		Version:     d.Version(),
		Type:        string(d.Type()),
		Enabled:     s.manager.IsEnabled(d.Name()),
		Installed:   s.manager.IsInstalled(d.Name()),
	}
}

// handleListExtensions handles GET /api/extensions
func (s *Server) handleListExtensions(c echo.Context) error {
	list := s.manager.List()
	infos := make([]ExtensionInfo, 0, len(list))
	for _, ext := range list {
		infos = append(infos, s.extensionInfo(ext))
	}
	return c.JSON(http.StatusOK, ExtensionListResponse{Extensions: infos, Total: len(infos)})
}

// handleGetExtension handles GET /api/extensions/:name
func (s *Server) handleGetExtension(c echo.Context) error {
	ext, ok := s.manager.Get(c.Param("name"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Extension not found")
	}
	return c.JSON(http.StatusOK, s.extensionInfo(ext))
}

// handleSetExtensionState handles POST /api/extensions/:name/state
func (s *Server) handleSetExtensionState(c echo.Context) error {
	name := c.Param("name")

	var req StateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var err error
	if *req.Enabled {
		err = s.manager.Enable(name)
	} else {
		err = s.manager.Disable(name)
	}
	if err != nil {
		return s.managerError(err)
	}

	if err := s.saveState(); err != nil {
		return err
	}

	ext, _ := s.manager.Get(name)
	return c.JSON(http.StatusOK, s.extensionInfo(ext))
}

// handleUninstallExtension handles POST /api/extensions/:name/uninstall
func (s *Server) handleUninstallExtension(c echo.Context) error {
	name := c.Param("name")
	if err := s.manager.Uninstall(name); err != nil {
		return s.managerError(err)
	}
	if err := s.saveState(); err != nil {
		return err
	}

	ext, _ := s.manager.Get(name)
	return c.JSON(http.StatusOK, s.extensionInfo(ext))
}

func (s *Server) managerError(err error) error {
	if errors.Is(err, extensions.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Extension not found")
	}
	s.logger.Error().Err(err).Msg("Extension hook failed")
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (s *Server) saveState() error {
	if s.onStateChange == nil {
		return nil
	}
	enabled, installed := s.manager.State()
	if err := s.onStateChange(enabled, installed); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist extension state")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to persist extension state")
	}
	return nil
}
