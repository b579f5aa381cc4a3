// Package keyboardnav implements the Keyboard Navigation system extension.
package keyboardnav

import "github.com/exthost/exthost/internal/extensions"

// Entrypoint is the metadata entrypoint this extension is registered under.
const Entrypoint = "KeyboardNavigation"

// Extension adds keyboard shortcuts to every page.
type Extension struct {
	*extensions.Descriptor
}

// New creates the extension for its descriptor.
func New(d *extensions.Descriptor) extensions.Extension {
	return &Extension{Descriptor: d}
}

// Init adds the shortcut script to every page.
func (e *Extension) Init(api *extensions.API) error {
	api.AppendScript(e.Name(), e.FileURL("shortcuts.js", extensions.AssetJS))
	api.Logger().Debug().Str("extension", e.Name()).Msg("Keyboard shortcuts enabled")
	return nil
}
