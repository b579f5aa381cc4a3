package extensions

import (
	"sync"

	"github.com/rs/zerolog"
)

// API provides the interface for extensions to interact with the host.
type API struct {
	logger *zerolog.Logger

	mu      sync.RWMutex
	styles  []AssetRegistration
	scripts []AssetRegistration
}

// AssetRegistration is a stylesheet or script added to pages by an extension.
type AssetRegistration struct {
	Extension string
	URL       string
}

// NewAPI creates a new extension API.
func NewAPI(logger zerolog.Logger) *API {
	return &API{
		logger:  &logger,
		styles:  make([]AssetRegistration, 0),
		scripts: make([]AssetRegistration, 0),
	}
}

// AppendStyle adds a stylesheet URL to every page.
func (api *API) AppendStyle(extension, url string) {
	api.mu.Lock()
	defer api.mu.Unlock()

	api.styles = appendUnique(api.styles, AssetRegistration{Extension: extension, URL: url})
	api.logger.Debug().Str("extension", extension).Str("url", url).Msg("Extension registered style")
}

// AppendScript adds a script URL to every page.
func (api *API) AppendScript(extension, url string) {
	api.mu.Lock()
	defer api.mu.Unlock()

	api.scripts = appendUnique(api.scripts, AssetRegistration{Extension: extension, URL: url})
	api.logger.Debug().Str("extension", extension).Str("url", url).Msg("Extension registered script")
}

// Styles returns the registered stylesheets in registration order.
func (api *API) Styles() []AssetRegistration {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return append([]AssetRegistration(nil), api.styles...)
}

// Scripts returns the registered scripts in registration order.
func (api *API) Scripts() []AssetRegistration {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return append([]AssetRegistration(nil), api.scripts...)
}

// Logger returns the logger for extensions to use.
func (api *API) Logger() *zerolog.Logger {
	return api.logger
}

// forget drops every asset registered by the extension.
func (api *API) forget(extension string) {
	api.mu.Lock()
	defer api.mu.Unlock()

	api.styles = removeExtension(api.styles, extension)
	api.scripts = removeExtension(api.scripts, extension)
}

func appendUnique(list []AssetRegistration, reg AssetRegistration) []AssetRegistration {
	for _, r := range list {
		if r == reg {
			return list
		}
	}
	return append(list, reg)
}

func removeExtension(list []AssetRegistration, extension string) []AssetRegistration {
	out := list[:0]
	for _, r := range list {
		if r.Extension != extension {
			out = append(out, r)
		}
	}
	return out
}
