package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if cfg.RunRetentionSeconds != 60 {
		t.Errorf("RunRetentionSeconds = %d, want 60", cfg.RunRetentionSeconds)
	}
	if cfg.OutputDir != filepath.Join(tmpDir, "exports") {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, filepath.Join(tmpDir, "exports"))
	}
	if cfg.StatePath != filepath.Join(tmpDir, "mappings.json") {
		t.Errorf("StatePath = %q, want %q", cfg.StatePath, filepath.Join(tmpDir, "mappings.json"))
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configJSON := `{"slack_channel_id": "C123", "concurrency": 3, "output_dir": "/tmp/out"}`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(configJSON), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SlackChannelID != "C123" {
		t.Errorf("SlackChannelID = %q, want %q", cfg.SlackChannelID, "C123")
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if cfg.OutputDir != "/tmp/out" {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, "/tmp/out")
	}
	// Unset fields keep defaults
	if cfg.RunRetentionSeconds != 60 {
		t.Errorf("RunRetentionSeconds = %d, want 60", cfg.RunRetentionSeconds)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Error("Load should fail on malformed config")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configJSON := `{"slack_token": "xoxb-from-file"}`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(configJSON), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-from-env")
	t.Setenv("WORDPRESS_APP_PASSWORD", "abcd efgh")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SlackToken != "xoxb-from-env" {
		t.Errorf("SlackToken = %q, want env override", cfg.SlackToken)
	}
	if cfg.WordPressAppPassword != "abcd efgh" {
		t.Errorf("WordPressAppPassword = %q, want env override", cfg.WordPressAppPassword)
	}
}

func TestMerge_DisabledTools(t *testing.T) {
	base := &Config{DisabledTools: []string{"sync_run", "prompt_set"}}
	overlay := &Config{DisabledTools: []string{"prompt_set", "mapping_remove"}}

	result := Merge(base, overlay)

	want := []string{"sync_run", "prompt_set", "mapping_remove"}
	if len(result.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", result.DisabledTools, want)
	}
	for i, tool := range want {
		if result.DisabledTools[i] != tool {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, result.DisabledTools[i], tool)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should fail with no credentials")
	}

	cfg.SlackToken = "xoxb-1"
	cfg.SlackChannelID = "C123"
	cfg.WordPressURL = "https://blog.example.com"
	cfg.WordPressUser = "editor"
	cfg.WordPressAppPassword = "pw"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}
