package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/exthost/exthost/internal/config"
	"github.com/exthost/exthost/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the extension host server",
		Long: `Load extensions, activate the enabled ones and serve their static files
together with the management API.`,
		Example: `  exthost serve
  exthost serve --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind (default: from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: from config)")

	return cmd
}

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop a running server",
		Example: "  exthost stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd)
		},
	}
}

func runServe(cmd *cobra.Command, host string, port int) error {
	out := cmd.OutOrStdout()

	if err := os.MkdirAll(config.StateDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	lockPath := filepath.Join(config.StateDir(), "exthost.lock")
	fileLock := flock.New(lockPath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("error checking lock file: %w", err)
	}
	if !locked {
		fmt.Fprintln(out, "Error: exthost is already running.")
		fmt.Fprintf(out, "   Lock file found at: %s\n", lockPath)
		return fmt.Errorf("server already running")
	}
	defer func() { _ = fileLock.Unlock() }()

	h, err := loadHost(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	// Install hooks run during startup are recorded right away.
	if err := h.saveState(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to save extension state")
	}

	if host == "" {
		host = h.cfg.Server.Host
	}
	if port == 0 {
		port = h.cfg.Server.Port
	}

	srv := server.New(&server.Config{
		Host:  host,
		Port:  port,
		Token: h.cfg.Server.Auth.Token,
		RateLimit: server.RateLimit{
			Enabled: h.cfg.Server.RateLimit.Enabled,
			RPS:     h.cfg.Server.RateLimit.RPS,
			Burst:   h.cfg.Server.RateLimit.Burst,
		},
	}, h.manager, h.logger, server.WithStateHook(func(map[string]bool, []string) error {
		return h.saveState()
	}))

	if err := writePID(); err != nil {
		return err
	}
	defer func() { _ = removePID() }()

	fmt.Fprintf(out, "Starting exthost on %s:%d\n", host, port)

	if os.Getenv("EXTHOST_SKIP_SERVER_START") == "true" {
		fmt.Fprintln(out, "Skipping actual server start for testing.")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = withRawInterrupt(ctx)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	return h.manager.UnloadAll(context.Background())
}

// withRawInterrupt cancels ctx when Ctrl+C arrives as a raw 0x03 byte, which
// happens when the terminal has ISIG turned off.
func withRawInterrupt(parent context.Context) context.Context {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return parent
	}

	ctx, cancel := context.WithCancel(parent)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		for {
			b, err := reader.ReadByte()
			if err != nil {
				return
			}
			if b == 3 {
				cancel()
				return
			}
		}
	}()
	return ctx
}

func runStop(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	pid, err := readPID()
	if err != nil {
		return fmt.Errorf("server not running (pid file missing)")
	}

	if !checkProcessRunning(pid) {
		_ = removePID()
		return fmt.Errorf("server process not running (stale pid file)")
	}

	if err := terminateProcess(pid); err != nil {
		return fmt.Errorf("failed to stop server (pid %d): %w", pid, err)
	}

	fmt.Fprintf(out, "Sent stop signal to exthost (PID %d)\n", pid)
	waitForProcessExit(pid, 3*time.Second)
	return nil
}

func pidPath() string {
	return filepath.Join(config.StateDir(), "exthost.pid")
}

func writePID() error {
	if err := os.MkdirAll(config.StateDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file")
	}
	return pid, nil
}

func removePID() error {
	return os.Remove(pidPath())
}
