package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestApplyFileConfig verifies the config file fills zero fields only
func TestApplyFileConfig(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "mipal-stream")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fileContent := "baseurl: https://api.example.com\ntoken: from-file\nsavedir: /tmp/convs\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(fileContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := applyFileConfig(&Config{
		AuthToken: "from-flag",
		Timeout:   time.Minute,
	})

	if cfg.BaseURL != "https://api.example.com" {
		t.Errorf("zero BaseURL not filled: %q", cfg.BaseURL)
	}
	if cfg.SaveDir != "/tmp/convs" {
		t.Errorf("zero SaveDir not filled: %q", cfg.SaveDir)
	}
	if cfg.AuthToken != "from-flag" {
		t.Errorf("flag token overridden: %q", cfg.AuthToken)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("flag timeout overridden: %v", cfg.Timeout)
	}
}

// TestResolveConfig verifies the full layering as the commands run it:
// flags beat the file, the file beats hardcoded fallbacks, and fallbacks
// fill whatever is still zero
func TestResolveConfig(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "mipal-stream")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fileContent := "baseurl: https://api.example.com\nsavedir: /tmp/convs\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(fileContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// no flags, no env: parseConfig produces the zero defaults
	cfg := resolveConfig(&Config{
		BaseURL: defaultBaseURL,
		Timeout: defaultTimeout,
	})
	if cfg.BaseURL != "https://api.example.com" {
		t.Errorf("file baseurl not applied: %q", cfg.BaseURL)
	}
	if cfg.SaveDir != "/tmp/convs" {
		t.Errorf("file savedir not applied: %q", cfg.SaveDir)
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("fallback timeout not applied: %v", cfg.Timeout)
	}

	// an explicit flag still wins over the file
	cfg = resolveConfig(&Config{BaseURL: "http://flagged:1"})
	if cfg.BaseURL != "http://flagged:1" {
		t.Errorf("flag baseurl overridden: %q", cfg.BaseURL)
	}
}

// TestResolveConfigNoFile falls back to the hardcoded defaults
func TestResolveConfigNoFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := resolveConfig(&Config{})
	if cfg.BaseURL != "http://localhost:8000" {
		t.Errorf("fallback baseurl = %q", cfg.BaseURL)
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("fallback timeout = %v", cfg.Timeout)
	}
}

// TestApplyFileConfigMissingFile leaves the config untouched
func TestApplyFileConfigMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	in := &Config{BaseURL: "http://localhost:8000"}
	out := applyFileConfig(in)
	if out.BaseURL != in.BaseURL {
		t.Errorf("config changed without a file: %+v", out)
	}
}

// TestGetEnvDuration parses durations with fallback
func TestGetEnvDuration(t *testing.T) {
	t.Setenv("MIPAL_TEST_DUR", "90s")
	if d := getEnvDuration("MIPAL_TEST_DUR", time.Minute); d != 90*time.Second {
		t.Errorf("parsed = %v", d)
	}
	t.Setenv("MIPAL_TEST_DUR", "not-a-duration")
	if d := getEnvDuration("MIPAL_TEST_DUR", time.Minute); d != time.Minute {
		t.Errorf("fallback = %v", d)
	}
	if d := getEnvDuration("MIPAL_UNSET_DUR", time.Minute); d != time.Minute {
		t.Errorf("unset fallback = %v", d)
	}
}

// TestTranscriptConversationID derives store-safe ids from paths
func TestTranscriptConversationID(t *testing.T) {
	if id := transcriptConversationID("/tmp/captures/query-42.sse"); id != "query-42" {
		t.Errorf("id = %q", id)
	}
	if id := transcriptConversationID("plain"); id != "plain" {
		t.Errorf("id = %q", id)
	}
}
