package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds application configuration.
type Config struct {
	// SlackToken is the bot token used for all Slack API calls and
	// authenticated file downloads. Overridable via SLACK_BOT_TOKEN.
	SlackToken string `json:"slack_token,omitempty"`

	// SlackChannelID is the channel whose threads are synchronized.
	// Overridable via SLACK_CHANNEL_ID.
	SlackChannelID string `json:"slack_channel_id,omitempty"`

	// WordPressURL is the site base URL, e.g. "https://blog.example.com".
	// Overridable via WORDPRESS_URL.
	WordPressURL string `json:"wordpress_url,omitempty"`

	// WordPressUser is the account owning the application password.
	// Overridable via WORDPRESS_USER.
	WordPressUser string `json:"wordpress_user,omitempty"`

	// WordPressAppPassword authenticates REST calls via basic auth.
	// Overridable via WORDPRESS_APP_PASSWORD.
	WordPressAppPassword string `json:"wordpress_app_password,omitempty"`

	// OutputDir is where transcripts, scaffolds, and media are written.
	// Defaults to <basedir>/exports.
	OutputDir string `json:"output_dir,omitempty"`

	// StatePath is the thread→post mapping file.
	// Defaults to <basedir>/mappings.json.
	StatePath string `json:"state_path,omitempty"`

	// Concurrency caps the fan-out of thread fetches, media downloads, and
	// transcript exports. 0 means the default of 8.
	Concurrency int `json:"concurrency,omitempty"`

	// RunRetentionSeconds is how long a finished run stays observable on the
	// status endpoint. 0 means the default of 60.
	RunRetentionSeconds int `json:"run_retention_seconds,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration for the given base directory.
func DefaultConfig(baseDir string) *Config {
	return &Config{
		OutputDir:           filepath.Join(baseDir, "exports"),
		StatePath:           filepath.Join(baseDir, "mappings.json"),
		Concurrency:         8,
		RunRetentionSeconds: 60,
	}
}

// Load loads configuration from baseDir/config.json, applies defaults, and
// then applies environment overrides. Returns default config if the file
// doesn't exist.
func Load(baseDir string) (*Config, error) {
	overlay, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	cfg := Merge(DefaultConfig(baseDir), overlay)
	cfg.applyEnv()
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs. Overlay values take precedence for
// scalars; DisabledTools is merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.SlackToken = pick(overlay.SlackToken, base.SlackToken)
	result.SlackChannelID = pick(overlay.SlackChannelID, base.SlackChannelID)
	result.WordPressURL = pick(overlay.WordPressURL, base.WordPressURL)
	result.WordPressUser = pick(overlay.WordPressUser, base.WordPressUser)
	result.WordPressAppPassword = pick(overlay.WordPressAppPassword, base.WordPressAppPassword)
	result.OutputDir = pick(overlay.OutputDir, base.OutputDir)
	result.StatePath = pick(overlay.StatePath, base.StatePath)

	result.Concurrency = overlay.Concurrency
	if result.Concurrency == 0 {
		result.Concurrency = base.Concurrency
	}

	result.RunRetentionSeconds = overlay.RunRetentionSeconds
	if result.RunRetentionSeconds == 0 {
		result.RunRetentionSeconds = base.RunRetentionSeconds
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// Validate checks that everything a sync run needs is present. Commands that
// only touch local state don't call this.
func (c *Config) Validate() error {
	var missing []string
	if c.SlackToken == "" {
		missing = append(missing, "slack_token")
	}
	if c.SlackChannelID == "" {
		missing = append(missing, "slack_channel_id")
	}
	if c.WordPressURL == "" {
		missing = append(missing, "wordpress_url")
	}
	if c.WordPressUser == "" {
		missing = append(missing, "wordpress_user")
	}
	if c.WordPressAppPassword == "" {
		missing = append(missing, "wordpress_app_password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %v (set in config.json or environment)", missing)
	}
	return nil
}

// applyEnv overrides secrets and connection settings from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		c.SlackToken = v
	}
	if v := os.Getenv("SLACK_CHANNEL_ID"); v != "" {
		c.SlackChannelID = v
	}
	if v := os.Getenv("WORDPRESS_URL"); v != "" {
		c.WordPressURL = v
	}
	if v := os.Getenv("WORDPRESS_USER"); v != "" {
		c.WordPressUser = v
	}
	if v := os.Getenv("WORDPRESS_APP_PASSWORD"); v != "" {
		c.WordPressAppPassword = v
	}
}

// pick returns overlay if non-empty, else base.
func pick(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
