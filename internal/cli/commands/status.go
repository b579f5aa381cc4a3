package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/exthost/exthost/internal/config"
	"github.com/exthost/exthost/internal/server"
)

const statusTimeout = 2 * time.Second

// serverStatus is what the status command reports about a running server.
type serverStatus struct {
	server.StatusResponse
	Running bool                   `json:"running"`
	Error   string                 `json:"error,omitempty"`
	List    []server.ExtensionInfo `json:"extensionList,omitempty"`
}

// NewStatusCommand creates the status subcommand.
func NewStatusCommand() *cobra.Command {
	var (
		host       string
		port       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running server",
		Long:  `Query a running exthost server for its uptime and the state of its extensions.`,
		Example: `  exthost status
  exthost status --host 127.0.0.1 --port 8088 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if host == "" {
				host = cfg.Server.Host
			}
			if port == 0 {
				port = cfg.Server.Port
			}

			status := fetchStatus(host, port, cfg.Server.Auth.Token)
			return printStatus(cmd.OutOrStdout(), host, port, status, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host (default: from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port (default: from config)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func fetchStatus(host string, port int, token string) *serverStatus {
	client := resty.New().
		SetTimeout(statusTimeout).
		SetHostURL(fmt.Sprintf("http://%s:%d", host, port))
	if token != "" {
		client.SetAuthToken(token)
	}

	status := &serverStatus{}
	resp, err := client.R().SetResult(&status.StatusResponse).Get("/api/status")
	if err != nil {
		status.Error = fmt.Sprintf("cannot connect to server: %v", err)
		return status
	}
	if resp.IsError() {
		status.Error = fmt.Sprintf("server returned status %d", resp.StatusCode())
		return status
	}
	status.Running = true

	var list server.ExtensionListResponse
	resp, err = client.R().SetResult(&list).Get("/api/extensions")
	if err == nil && resp.IsError() {
		err = fmt.Errorf("server returned status %d", resp.StatusCode())
	}
	if err != nil {
		status.Error = fmt.Sprintf("failed to list extensions: %v", err)
		return status
	}
	status.List = list.Extensions
	return status
}

func printStatus(out io.Writer, host string, port int, status *serverStatus, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintln(out, "exthost status")
	fmt.Fprintln(out, "==============")

	if !status.Running {
		fmt.Fprintln(out, "Server:      not running")
		if status.Error != "" {
			fmt.Fprintf(out, "Error:       %s\n", status.Error)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Start the server with: exthost serve")
		return nil
	}

	fmt.Fprintf(out, "Server:      running on %s:%d\n", host, port)
	fmt.Fprintf(out, "Version:     %s\n", status.Version)
	fmt.Fprintf(out, "Uptime:      %s\n", status.Uptime)
	fmt.Fprintf(out, "Extensions:  %d loaded, %d enabled\n", status.Extensions, status.Enabled)
	for _, ext := range status.List {
		mark := " "
		if ext.Enabled {
			mark = "*"
		}
		fmt.Fprintf(out, "  %s %s (%s %s)\n", mark, ext.Name, ext.Type, ext.Version)
	}
	if status.Error != "" {
		fmt.Fprintf(out, "Warning:     %s\n", status.Error)
	}
	fmt.Fprintf(out, "Runtime:     %s (%s/%s)\n", status.GoVersion, status.OS, status.Arch)
	return nil
}
