package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exthost/exthost/internal/extensions"
)

type styledExtension struct {
	*extensions.Descriptor
}

func (e *styledExtension) Init(api *extensions.API) error {
	api.AppendStyle(e.Name(), e.FileURL("style.css", extensions.AssetCSS))
	api.AppendScript(e.Name(), e.FileURL("app.js", extensions.AssetJS))
	return nil
}

type testEnv struct {
	server  *Server
	manager *extensions.Manager
	fs      afero.Fs
	saved   map[string]bool
}

func newTestEnv(t *testing.T, cfg *Config) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ext/myext/metadata.json", []byte(`{"name":"My Ext","entrypoint":"Styled"}`), 0644))
	require.NoError(t, afero.WriteFile(fs, "/ext/myext/static/style.css", []byte("body{color:red}"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/ext/myext/static/app.js", []byte("console.log(1)"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/ext/myext/secret.txt", []byte("nope"), 0644))
	mtime := time.Unix(1700000000, 0)
	require.NoError(t, fs.Chtimes("/ext/myext/static/style.css", mtime, mtime))

	logger := zerolog.Nop()
	manager := extensions.NewManager(logger, extensions.NewAPI(logger), extensions.WithManagerFs(fs))
	manager.RegisterFactory("Styled", func(d *extensions.Descriptor) extensions.Extension {
		return &styledExtension{Descriptor: d}
	})
	manager.AddSearchDir("/ext", extensions.TypeUser)
	require.NoError(t, manager.LoadAll())

	env := &testEnv{manager: manager, fs: fs}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8088}
	}
	env.server = New(cfg, manager, logger, WithFs(fs), WithStateHook(func(enabled map[string]bool, installed []string) error {
		env.saved = enabled
		return nil
	}))
	return env
}

func (env *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestHandleRoot(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "exthost")
}

func TestServerNew(t *testing.T) {
	env := newTestEnv(t, &Config{Host: "0.0.0.0", Port: 8080})

	assert.Equal(t, "0.0.0.0", env.server.config.Host)
	assert.Equal(t, 8080, env.server.config.Port)
	assert.False(t, env.server.IsRunning())
	assert.Equal(t, time.Duration(0), env.server.Uptime())
}

func TestExtensionFileServesFileURL(t *testing.T) {
	env := newTestEnv(t, nil)
	ext, ok := env.manager.Get("My Ext")
	require.True(t, ok)

	// The URL as written into markup, with its entities decoded by the browser.
	markupURL := ext.Meta().FileURL("style.css", extensions.AssetCSS)
	assert.Equal(t, "/ext.php?f=myext%2Fstatic%2Fstyle.css&amp;t=css&amp;1700000000", markupURL)
	browserURL := strings.ReplaceAll(markupURL, "&amp;", "&")

	rec := env.do(http.MethodGet, browserURL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{color:red}", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/css")
	assert.Contains(t, rec.Header().Get(echo.HeaderCacheControl), "max-age")
	assert.Equal(t, "Tue, 14 Nov 2023 22:13:20 GMT", rec.Header().Get(echo.HeaderLastModified))

	// The raw markup URL also resolves.
	rec = env.do(http.MethodGet, markupURL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{color:red}", rec.Body.String())
}

func TestExtensionFileHead(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodHead, "/ext.php?f=myext%2Fstatic%2Fapp.js&t=js&", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "javascript")
	assert.Empty(t, rec.Body.String())
}

func TestExtensionFileErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"bad type", "/ext.php?f=myext%2Fstatic%2Fstyle.css&t=png", http.StatusBadRequest},
		{"missing type", "/ext.php?f=myext%2Fstatic%2Fstyle.css", http.StatusBadRequest},
		{"outside static", "/ext.php?f=myext%2Fsecret.txt&t=css", http.StatusBadRequest},
		{"traversal", "/ext.php?f=myext%2Fstatic%2F..%2Fsecret.txt&t=css", http.StatusBadRequest},
		{"unknown extension", "/ext.php?f=other%2Fstatic%2Fstyle.css&t=css", http.StatusNotFound},
		{"missing file", "/ext.php?f=myext%2Fstatic%2Fnope.css&t=css", http.StatusNotFound},
		{"directory", "/ext.php?f=myext%2Fstatic%2F&t=css", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSplitAssetKey(t *testing.T) {
	dir, file, ok := splitAssetKey("myext/static/css/theme.css")
	assert.True(t, ok)
	assert.Equal(t, "myext", dir)
	assert.Equal(t, "css/theme.css", file)

	for _, key := range []string{"", "myext", "myext/static/", "/static/a.css", "myext/lib/a.css", "myext/static/a/../b.css", `myext/static/a\b.css`} {
		_, _, ok := splitAssetKey(key)
		assert.False(t, ok, key)
	}
}

func TestExtensionStateAPI(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/head", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/extensions/My%20Ext/state", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var info ExtensionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Enabled)
	assert.True(t, info.Installed)
	assert.Equal(t, "user", info.Type)
	assert.Equal(t, map[string]bool{"My Ext": true}, env.saved)

	rec = env.do(http.MethodGet, "/head", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<link rel="stylesheet" href="/ext.php?f=myext%2Fstatic%2Fstyle.css&amp;t=css&amp;1700000000" />`)
	assert.Contains(t, body, `<script src="/ext.php?f=myext%2Fstatic%2Fapp.js&amp;t=js&amp;`)

	rec = env.do(http.MethodPost, "/api/extensions/My%20Ext/state", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"My Ext": false}, env.saved)
	assert.Empty(t, env.do(http.MethodGet, "/head", "").Body.String())

	rec = env.do(http.MethodPost, "/api/extensions/My%20Ext/uninstall", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.False(t, info.Installed)
}

func TestExtensionStateValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/api/extensions/My%20Ext/state", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "enabled")

	rec = env.do(http.MethodPost, "/api/extensions/nope/state", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtensionStatePersistFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.onStateChange = func(map[string]bool, []string) error { return errors.New("disk full") }

	rec := env.do(http.MethodPost, "/api/extensions/My%20Ext/state", `{"enabled":true}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListExtensions(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/api/extensions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Extensions []ExtensionInfo `json:"extensions"`
		Total      int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "My Ext", resp.Extensions[0].Name)
	assert.Equal(t, extensions.DefaultVersion, resp.Extensions[0].Version)

	rec = env.do(http.MethodGet, "/api/extensions/My%20Ext", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodGet, "/api/extensions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.manager.Enable("My Ext"))

	rec := env.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Extensions)
	assert.Equal(t, 1, status.Enabled)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, &Config{Host: "localhost", Port: 8088, Token: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/extensions", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/extensions", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/extensions", "", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/extensions", "", "X-Exthost-Token", "s3cret").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/extensions?token=s3cret", "").Code)

	// Public routes stay open.
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "").Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &Config{Host: "localhost", Port: 8088, RateLimit: RateLimit{Enabled: true, RPS: 1, Burst: 1}})

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodGet, "/health", "").Code)
}
