// Package commands provides CLI subcommands for exthost.
package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/exthost/exthost/extensions/builtin"
	"github.com/exthost/exthost/internal/config"
	"github.com/exthost/exthost/internal/extensions"
	"github.com/exthost/exthost/internal/urls"
)

// host bundles what commands working on extensions need.
type host struct {
	cfg     *config.Config
	logger  zerolog.Logger
	manager *extensions.Manager

	mu sync.Mutex
}

// newLogger builds the root logger from the logging config.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	if cfg.Logging.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// loadHost loads the config, discovers extensions and activates the enabled ones.
func loadHost(cmd *cobra.Command, logOut io.Writer) (*host, error) {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cfg, verbose, logOut)

	manager := extensions.NewManager(logger, extensions.NewAPI(logger),
		extensions.WithManagerDisplayer(urls.NewBasePath(cfg.Server.BasePath)))
	builtin.Register(manager)
	if dir := cfg.Extensions.SystemDir; dir != "" {
		manager.AddSearchDir(absDir(dir), extensions.TypeSystem)
	}
	if dir := cfg.Extensions.UserDir; dir != "" {
		manager.AddSearchDir(absDir(dir), extensions.TypeUser)
	}
	if err := manager.LoadAll(); err != nil {
		return nil, err
	}

	manager.SetInstalled(cfg.Extensions.Installed)
	if err := manager.InitEnabled(cfg.Extensions.EnabledMap()); err != nil {
		logger.Warn().Err(err).Msg("Some extensions failed to initialize")
	}

	return &host{cfg: cfg, logger: logger, manager: manager}, nil
}

// saveState writes the manager's extension state to the config file.
func (h *host) saveState() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	enabled, installed := h.manager.State()
	h.cfg.Extensions.SetState(enabled, installed)
	return config.Save(h.cfg)
}

func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// logWriter returns where command logs go: stderr, or nowhere unless verbose.
func logWriter(cmd *cobra.Command) io.Writer {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return cmd.ErrOrStderr()
	}
	return io.Discard
}
