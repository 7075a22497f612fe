package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	API           APIConfig           `toml:"api"`
	Worker        WorkerConfig        `toml:"worker"`
	Web           WebConfig           `toml:"web"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath    string `toml:"database_path"`
	CredentialsPath string `toml:"credentials_path"`
	DropDir         string `toml:"drop_dir"`
}

// APIConfig holds remote API settings
type APIConfig struct {
	Endpoint    string `toml:"endpoint"`
	UserAgent   string `toml:"user_agent"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// WorkerConfig holds batch worker settings
type WorkerConfig struct {
	MaxParallelBatches int    `toml:"max_parallel_batches"`
	PollIntervalSecs   int    `toml:"poll_interval_secs"`
	SweepCron          string `toml:"sweep_cron"`
	StaleAfterMins     int    `toml:"stale_after_mins"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	WebhookURL string `toml:"webhook_url"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".qsd")
	return &Config{
		General: GeneralConfig{
			DatabasePath:    filepath.Join(base, "batches.db"),
			CredentialsPath: filepath.Join(base, "credentials.yaml"),
			DropDir:         "",
		},
		API: APIConfig{
			Endpoint:    "https://www.wikidata.org/w/rest.php/wikibase/v1",
			UserAgent:   "qsd",
			TimeoutSecs: 60,
		},
		Worker: WorkerConfig{
			MaxParallelBatches: 3,
			PollIntervalSecs:   5,
			SweepCron:          "*/10 * * * *",
			StaleAfterMins:     30,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".qsd", "config.toml")
}
