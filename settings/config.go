package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	LogLevel string `env:"I18NCMS_LOG_LEVEL" envDefault:"info"`
	LogColor bool   `env:"I18NCMS_LOG_COLOR" envDefault:"true"`
	NoColor  bool   `env:"NO_COLOR"`

	// DataDir overrides the XDG data directory.
	DataDir string `env:"I18NCMS_DATA_DIR"`

	HTTPTimeout      time.Duration `env:"I18NCMS_HTTP_TIMEOUT" envDefault:"30s"`
	ContentCacheSize int           `env:"I18NCMS_CONTENT_CACHE_SIZE" envDefault:"256"`
	RecentBranches   int           `env:"I18NCMS_RECENT_BRANCHES" envDefault:"5"`

	GitHubAPIURL string `env:"GITHUB_API_URL"`

	GitLabURL          string `env:"GITLAB_URL" envDefault:"https://gitlab.com"`
	GitLabClientID     string `env:"GITLAB_CLIENT_ID"`
	GitLabClientSecret string `env:"GITLAB_CLIENT_SECRET"`

	BitbucketAPIURL       string `env:"BITBUCKET_API_URL" envDefault:"https://api.bitbucket.org/2.0"`
	BitbucketTokenURL     string `env:"BITBUCKET_TOKEN_URL" envDefault:"https://bitbucket.org/site/oauth2/access_token"`
	BitbucketClientID     string `env:"BITBUCKET_CLIENT_ID"`
	BitbucketClientSecret string `env:"BITBUCKET_CLIENT_SECRET"`
}

// LoadConfig reads a .env file from the working directory if there is one,
// then parses the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.RecentBranches < 1 {
		return Config{}, fmt.Errorf("I18NCMS_RECENT_BRANCHES must be at least 1, got %d", cfg.RecentBranches)
	}
	if cfg.ContentCacheSize < 1 {
		return Config{}, fmt.Errorf("I18NCMS_CONTENT_CACHE_SIZE must be at least 1, got %d", cfg.ContentCacheSize)
	}
	return cfg, nil
}

// Colored reports whether log output should use ANSI colours.
func (c Config) Colored() bool {
	return c.LogColor && !c.NoColor
}

// GitLabAPIURL is the v4 API root of the configured instance.
func (c Config) GitLabAPIURL() string {
	return c.GitLabURL + "/api/v4"
}

// GitLabTokenURL is the OAuth token endpoint of the configured instance.
func (c Config) GitLabTokenURL() string {
	return c.GitLabURL + "/oauth/token"
}

// ResolveDataDir returns DataDir if set, otherwise the XDG data directory.
func (c Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	return DataDir()
}

// SessionPath is the session.json location.
func (c Config) SessionPath() (string, error) {
	dir, err := c.ResolveDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sessionFileName), nil
}

// DataDir returns the XDG data directory for i18ncms.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}
