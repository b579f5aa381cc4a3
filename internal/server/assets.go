package server

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/exthost/exthost/internal/extensions"
)

// assetQuery parses the query of an asset URL. Keys may carry an "amp;" prefix
// when the URL was copied from markup without unescaping it. The trailing
// cache-busting token has no value and is ignored.
func assetQuery(raw string) (file, typ string) {
	for _, part := range strings.Split(raw, "&") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		key = strings.TrimPrefix(key, "amp;")
		v, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}
		switch key {
		case "f":
			file = v
		case "t":
			typ = v
		}
	}
	return file, typ
}

// splitAssetKey splits "<dir>/static/<file>" into dir and file.
func splitAssetKey(key string) (dir, file string, ok bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] != extensions.StaticDir || parts[2] == "" {
		return "", "", false
	}
	for _, seg := range strings.Split(parts[2], "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", "", false
		}
	}
	if strings.Contains(parts[2], "\\") {
		return "", "", false
	}
	return parts[0], parts[2], true
}

// handleExtensionFile handles GET /ext.php?f=<dir>/static/<file>&t=<js|css>
func (s *Server) handleExtensionFile(c echo.Context) error {
	key, typ := assetQuery(c.Request().URL.RawQuery)

	contentType, ok := extensions.AssetType(typ).ContentType()
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid file type")
	}

	dir, file, ok := splitAssetKey(key)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid file name")
	}

	ext, ok := s.manager.GetByDir(dir)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Extension not found")
	}

	path := filepath.Join(ext.Meta().Path(), extensions.StaticDir, filepath.FromSlash(file))
	f, err := s.fs.Open(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}

	h := c.Response().Header()
	// URLs carry the modification time, so a changed file gets a new URL.
	h.Set(echo.HeaderCacheControl, "public, max-age=31536000")
	h.Set(echo.HeaderLastModified, info.ModTime().UTC().Format(http.TimeFormat))
	h.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size(), 10))

	if c.Request().Method == http.MethodHead {
		h.Set(echo.HeaderContentType, contentType)
		return c.NoContent(http.StatusOK)
	}
	return c.Stream(http.StatusOK, contentType, f)
}

// handleHead handles GET /head, the stylesheet and script tags of enabled extensions.
func (s *Server) handleHead(c echo.Context) error {
	api := s.manager.API()

	var b strings.Builder
	for _, reg := range api.Styles() {
		b.WriteString(`<link rel="stylesheet" href="`)
		b.WriteString(reg.URL)
		b.WriteString(`" />`)
		b.WriteString("\n")
	}
	for _, reg := range api.Scripts() {
		b.WriteString(`<script src="`)
		b.WriteString(reg.URL)
		b.WriteString(`" defer></script>`)
		b.WriteString("\n")
	}
	return c.HTML(http.StatusOK, b.String())
}
