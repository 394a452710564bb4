package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig writes a minimal valid config file and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := fmt.Sprintf(`[service]
api_key = "test-key"

[paths]
log_dir = %q
data_dir = %q
`, filepath.Join(base, "logs"), filepath.Join(base, "data"))

	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCommand()
	expected := []string{"submit", "status", "jobs", "cancel", "stats", "daemon", "config"}
	for _, name := range expected {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestSubmitRejectsArgumentsWithoutIdentifiers(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := runCLI(t, "--config", cfg, "submit", "nothing useful here")
	if err == nil || !strings.Contains(err.Error(), "no verification identifiers") {
		t.Fatalf("expected extraction error, got %v", err)
	}
}
