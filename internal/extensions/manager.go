package extensions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/exthost/exthost/internal/urls"
)

var (
	// ErrNotFound is returned when no extension is registered under a name.
	ErrNotFound = errors.New("extension not found")
	// ErrEntrypointNotFound is returned when no factory is registered for an entrypoint.
	ErrEntrypointNotFound = errors.New("entrypoint not found")
	// ErrAlreadyRegistered is returned when an extension name is taken.
	ErrAlreadyRegistered = errors.New("extension already registered")
	// ErrDirTaken is returned when another extension already uses the same directory name.
	ErrDirTaken = errors.New("extension directory name already taken")
)

// Extension represents a loaded extension.
type Extension interface {
	// Meta returns the extension descriptor.
	Meta() *Descriptor
	// Install sets up persistent state the extension needs. Called once per registration.
	Install() error
	// Uninstall reverts what Install did.
	Uninstall() error
	// Init activates the extension in the running application.
	Init(api *API) error
}

// Factory builds the concrete extension for a descriptor.
type Factory func(d *Descriptor) Extension

// Manager manages extensions.
type Manager struct {
	logger  zerolog.Logger
	api     *API
	fs      afero.Fs
	display urls.Displayer

	factories  map[string]Factory
	extensions map[string]Extension
	dirs       map[string]string // directory name -> extension name
	installed  map[string]bool
	enabled    map[string]bool
	searchDirs []searchDir

	mu sync.RWMutex
}

type searchDir struct {
	path string
	typ  Type
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerFs sets the filesystem extensions are discovered and read from.
func WithManagerFs(fs afero.Fs) ManagerOption {
	return func(m *Manager) {
		m.fs = fs
	}
}

// WithManagerDisplayer sets the URL transform handed to every loaded descriptor.
func WithManagerDisplayer(display urls.Displayer) ManagerOption {
	return func(m *Manager) {
		m.display = display
	}
}

// NewManager creates a new extension manager.
func NewManager(logger zerolog.Logger, api *API, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:     logger.With().Str("component", "extensions").Logger(),
		api:        api,
		fs:         afero.NewOsFs(),
		display:    urls.Identity(),
		factories:  make(map[string]Factory),
		extensions: make(map[string]Extension),
		dirs:       make(map[string]string),
		installed:  make(map[string]bool),
		enabled:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// API returns the API handed to extensions on Init.
func (m *Manager) API() *API {
	return m.api
}

// RegisterFactory binds an entrypoint name to the factory building its extension.
func (m *Manager) RegisterFactory(entrypoint string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[entrypoint] = f
}

// AddSearchDir adds a directory to search for extensions. Extensions found there
// whose metadata omits a type get typ.
func (m *Manager) AddSearchDir(dir string, typ Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchDirs = append(m.searchDirs, searchDir{path: dir, typ: typ})
}

// LoadAll loads all extensions from search directories, in the order they
// were added. Extensions that fail to load are logged and skipped, so the
// first directory wins when names or directory names collide.
func (m *Manager) LoadAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, dir := range m.searchDirs {
		if err := m.loadFromDir(dir); err != nil {
			m.logger.Warn().Err(err).Str("dir", dir.path).Msg("Failed to load extensions from directory")
		}
	}

	return nil
}

// Register registers a built-in extension.
func (m *Manager) Register(ext Extension) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(ext)
}

func (m *Manager) register(ext Extension) error {
	name := ext.Meta().Name()
	if _, exists := m.extensions[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	dir := ext.Meta().Dir()
	if owner, taken := m.dirs[dir]; taken {
		return fmt.Errorf("%w: %s is used by %s", ErrDirTaken, dir, owner)
	}

	m.extensions[name] = ext
	m.dirs[dir] = name
	m.logger.Info().Str("name", name).Str("type", string(ext.Meta().Type())).Msg("Registered extension")
	return nil
}

// Get returns an extension by name.
func (m *Manager) Get(name string) (Extension, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ext, ok := m.extensions[name]
	return ext, ok
}

// GetByDir returns the extension whose directory name is dir.
func (m *Manager) GetByDir(dir string) (Extension, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.dirs[dir]
	if !ok {
		return nil, false
	}
	return m.extensions[name], true
}

// List returns all registered extensions sorted by name.
func (m *Manager) List() []Extension {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Extension, 0, len(m.extensions))
	for _, ext := range m.extensions {
		result = append(result, ext)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Meta().Name() < result[j].Meta().Name()
	})
	return result
}

// IsEnabled reports whether the extension is active.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled[name]
}

// IsInstalled reports whether Install has run for the extension.
func (m *Manager) IsInstalled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.installed[name]
}

// Install runs the extension's Install hook unless it is already installed.
func (m *Manager) Install(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.install(name)
}

func (m *Manager) install(name string) error {
	ext, ok := m.extensions[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if m.installed[name] {
		return nil
	}

	if err := ext.Install(); err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}
	m.installed[name] = true
	m.logger.Info().Str("name", name).Msg("Installed extension")
	return nil
}

// Uninstall disables the extension and runs its Uninstall hook.
func (m *Manager) Uninstall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext, ok := m.extensions[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	m.disable(name)
	if !m.installed[name] {
		return nil
	}

	if err := ext.Uninstall(); err != nil {
		return fmt.Errorf("uninstall %s: %w", name, err)
	}
	delete(m.installed, name)
	m.logger.Info().Str("name", name).Msg("Uninstalled extension")
	return nil
}

// Enable installs the extension if needed and runs its Init hook.
// Enabling an enabled extension does nothing.
func (m *Manager) Enable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enable(name)
}

func (m *Manager) enable(name string) error {
	if m.enabled[name] {
		return nil
	}
	if err := m.install(name); err != nil {
		return err
	}

	ext := m.extensions[name]
	if err := ext.Init(m.api); err != nil {
		m.api.forget(name)
		return fmt.Errorf("init %s: %w", name, err)
	}
	m.enabled[name] = true
	m.logger.Info().Str("name", name).Msg("Enabled extension")
	return nil
}

// Disable deactivates the extension and drops the assets it registered.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.extensions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	m.disable(name)
	return nil
}

func (m *Manager) disable(name string) {
	if !m.enabled[name] {
		return
	}
	delete(m.enabled, name)
	m.api.forget(name)
	m.logger.Info().Str("name", name).Msg("Disabled extension")
}

// InitEnabled activates extensions at startup. An extension is enabled when
// enabled[name] is true, and system extensions are enabled unless enabled[name]
// is explicitly false. Failures are logged and returned together.
func (m *Manager) InitEnabled(enabled map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.extensions))
	for name := range m.extensions {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		want, set := enabled[name]
		if !set {
			want = m.extensions[name].Meta().Type() == TypeSystem
		}
		if !want {
			continue
		}
		if err := m.enable(name); err != nil {
			m.logger.Warn().Err(err).Str("name", name).Msg("Failed to enable extension")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetInstalled records extensions installed by a previous run, so their Install
// hook is not run again.
func (m *Manager) SetInstalled(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		m.installed[name] = true
	}
}

// State returns the enabled flag of every registered extension and the sorted
// list of installed extensions.
func (m *Manager) State() (map[string]bool, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	enabled := make(map[string]bool, len(m.extensions))
	for name := range m.extensions {
		enabled[name] = m.enabled[name]
	}
	installed := make([]string, 0, len(m.installed))
	for name := range m.installed {
		installed = append(installed, name)
	}
	sort.Strings(installed)
	return enabled, installed
}

// UnloadAll disables and forgets all extensions.
func (m *Manager) UnloadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.extensions {
		m.disable(name)
	}

	m.extensions = make(map[string]Extension)
	m.dirs = make(map[string]string)
	return nil
}
