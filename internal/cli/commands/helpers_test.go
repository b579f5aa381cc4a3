package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// testHome is an isolated state dir with a config pointing at temp extension dirs.
type testHome struct {
	stateDir  string
	systemDir string
	userDir   string
}

func newTestHome(t *testing.T) *testHome {
	t.Helper()
	root := t.TempDir()
	h := &testHome{
		stateDir:  filepath.Join(root, "state"),
		systemDir: filepath.Join(root, "system"),
		userDir:   filepath.Join(root, "user"),
	}
	t.Setenv("EXTHOST_STATE_DIR", h.stateDir)
	t.Setenv("EXTHOST_CONFIG_PATH", "")

	h.writeFile(t, filepath.Join(h.systemDir, "keyboard", "metadata.json"),
		`{"name":"Keyboard Navigation","entrypoint":"KeyboardNavigation","type":"system","version":"1.0"}`)
	h.writeFile(t, filepath.Join(h.systemDir, "keyboard", "static", "shortcuts.js"), "// shortcuts\n")
	h.writeFile(t, filepath.Join(h.userDir, "customcss", "metadata.json"),
		`{"name":"Custom CSS","entrypoint":"CustomCSS","author":"tester"}`)

	h.writeConfig(t, map[string]interface{}{
		"server": map[string]interface{}{"port": 8088},
		"extensions": map[string]interface{}{
			"systemDir": h.systemDir,
			"userDir":   h.userDir,
		},
	})
	return h
}

func (h *testHome) writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (h *testHome) writeConfig(t *testing.T, cfg map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	h.writeFile(t, filepath.Join(h.stateDir, "exthost.json"), string(data))
}

// readConfig returns the extensions section of the saved config.
func (h *testHome) readConfig(t *testing.T) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.stateDir, "exthost.json"))
	require.NoError(t, err)
	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &cfg))
	ext, _ := cfg["extensions"].(map[string]interface{})
	return ext
}

// runCommand executes cmd with args, adding the persistent flags the root command provides.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	cmd.PersistentFlags().BoolP("verbose", "v", false, "")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
