package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/exthost/exthost/internal/extensions"
)

var (
	enabledStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	installedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	inactiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// NewExtensionsCommand creates the extensions command.
func NewExtensionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "extensions",
		Aliases: []string{"ext"},
		Short:   "Manage extensions",
		Example: `  exthost extensions list
  exthost extensions enable "Custom CSS"
  exthost extensions url "Custom CSS" style.css css`,
	}

	cmd.AddCommand(newExtensionsListCommand())
	cmd.AddCommand(newExtensionsInfoCommand())
	cmd.AddCommand(newExtensionsStateCommand("enable", "Install if needed and activate an extension", (*extensions.Manager).Enable))
	cmd.AddCommand(newExtensionsStateCommand("disable", "Deactivate an extension", (*extensions.Manager).Disable))
	cmd.AddCommand(newExtensionsStateCommand("install", "Run an extension's install hook", (*extensions.Manager).Install))
	cmd.AddCommand(newExtensionsStateCommand("uninstall", "Deactivate an extension and run its uninstall hook", (*extensions.Manager).Uninstall))
	cmd.AddCommand(newExtensionsURLCommand())

	return cmd
}

func newExtensionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List discovered extensions",
		Example: "  exthost extensions list",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHost(cmd, logWriter(cmd))
			if err != nil {
				return err
			}

			list := h.manager.List()
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No extensions found.")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Name", "Type", "Version", "Status", "Author"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)

			for _, ext := range list {
				d := ext.Meta()
				table.Append([]string{
					d.Name(),
					string(d.Type()),
					d.Version(),
					h.statusLabel(d.Name()),
					d.Author(),
				})
			}
			table.Render()
			return nil
		},
	}
}

func (h *host) statusLabel(name string) string {
	switch {
	case h.manager.IsEnabled(name):
		return enabledStyle.Render("enabled")
	case h.manager.IsInstalled(name):
		return installedStyle.Render("installed")
	default:
		return inactiveStyle.Render("disabled")
	}
}

func newExtensionsInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "info <name>",
		Short:   "Show an extension's metadata",
		Example: `  exthost extensions info "Keyboard Navigation"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHost(cmd, logWriter(cmd))
			if err != nil {
				return err
			}

			ext, ok := h.manager.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", extensions.ErrNotFound, args[0])
			}
			d := ext.Meta()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:        %s\n", d.Name())
			fmt.Fprintf(out, "Entrypoint:  %s\n", d.Entrypoint())
			fmt.Fprintf(out, "Type:        %s\n", d.Type())
			fmt.Fprintf(out, "Version:     %s\n", d.Version())
			fmt.Fprintf(out, "Author:      %s\n", d.Author())
			fmt.Fprintf(out, "Description: %s\n", d.Description())
			fmt.Fprintf(out, "Path:        %s\n", d.Path())
			fmt.Fprintf(out, "Status:      %s\n", h.statusLabel(d.Name()))
			return nil
		},
	}
}

// newExtensionsStateCommand builds a subcommand applying op to one extension
// and saving the resulting state.
func newExtensionsStateCommand(use, short string, op func(*extensions.Manager, string) error) *cobra.Command {
	return &cobra.Command{
		Use:     use + " <name>",
		Short:   short,
		Example: fmt.Sprintf(`  exthost extensions %s "Custom CSS"`, use),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHost(cmd, logWriter(cmd))
			if err != nil {
				return err
			}

			name := args[0]
			if err := op(h.manager, name); err != nil {
				return err
			}
			if err := h.saveState(); err != nil {
				return fmt.Errorf("failed to save state: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, h.statusLabel(name))
			return nil
		},
	}
}

func newExtensionsURLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "url <name> <file> <js|css>",
		Short: "Print the cache-busted URL of an extension's static file",
		Example: `  exthost extensions url "Custom CSS" style.css css
  exthost extensions url "Keyboard Navigation" shortcuts.js js`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := extensions.AssetType(args[2])
			if _, ok := typ.ContentType(); !ok {
				return fmt.Errorf("unknown asset type %q (want js or css)", args[2])
			}

			h, err := loadHost(cmd, logWriter(cmd))
			if err != nil {
				return err
			}

			ext, ok := h.manager.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", extensions.ErrNotFound, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), ext.Meta().FileURL(args[1], typ))
			return nil
		},
	}
}
