// Package customcss implements the Custom CSS extension, which adds a user
// editable stylesheet to every page.
package customcss

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/exthost/exthost/internal/extensions"
)

// Entrypoint is the metadata entrypoint this extension is registered under.
const Entrypoint = "CustomCSS"

// Stylesheet is the file, relative to the extension static directory, holding the user CSS.
const Stylesheet = "style.css"

const header = "/* Custom CSS: rules in this file are added to every page. */\n"

// Extension implements the Custom CSS extension.
type Extension struct {
	*extensions.Descriptor
}

// New creates the extension for its descriptor.
func New(d *extensions.Descriptor) extensions.Extension {
	return &Extension{Descriptor: d}
}

func (e *Extension) stylesheetPath() string {
	return filepath.Join(e.Path(), extensions.StaticDir, Stylesheet)
}

// Install creates an empty stylesheet unless one exists.
func (e *Extension) Install() error {
	fs := e.Fs()
	path := e.stylesheetPath()

	if _, err := fs.Stat(path); err == nil {
		return nil
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create static dir: %w", err)
	}
	return afero.WriteFile(fs, path, []byte(header), 0644)
}

// Uninstall removes the stylesheet.
func (e *Extension) Uninstall() error {
	err := e.Fs().Remove(e.stylesheetPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Init adds the stylesheet to every page.
func (e *Extension) Init(api *extensions.API) error {
	api.AppendStyle(e.Name(), e.FileURL(Stylesheet, extensions.AssetCSS))
	return nil
}

// Write replaces the stylesheet content.
func (e *Extension) Write(css string) error {
	return afero.WriteFile(e.Fs(), e.stylesheetPath(), []byte(header+css), 0644)
}
