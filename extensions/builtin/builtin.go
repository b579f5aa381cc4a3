// Package builtin registers the extensions shipped with exthost.
package builtin

import (
	"github.com/exthost/exthost/extensions/customcss"
	"github.com/exthost/exthost/extensions/keyboardnav"
	"github.com/exthost/exthost/internal/extensions"
)

// Register binds the entrypoints of all bundled extensions on m.
func Register(m *extensions.Manager) {
	m.RegisterFactory(customcss.Entrypoint, customcss.New)
	m.RegisterFactory(keyboardnav.Entrypoint, keyboardnav.New)
}
