package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures credentials, storage, report, and serving settings.
type Config struct {
	Account Account `yaml:"account"`
	Storage Storage `yaml:"storage"`
	Report  Reports `yaml:"report"`
	Cache   Cache   `yaml:"cache"`
	API     API     `yaml:"api"`
	Metrics Metrics `yaml:"metrics"`
}

type Account struct {
	Username string `yaml:"username"`
	// If empty, read from env INSTAGRAM_PASSWORD
	Password string `yaml:"password"`
	// Directory holding <username>_session.json files
	SessionDir string `yaml:"sessionDir"`
}

type Storage struct {
	DBPath string `yaml:"dbPath"`
}

type Reports struct {
	// IANA zone the report day boundary is computed in; empty means local
	Timezone string `yaml:"timezone"`
	// Usernames excluded from the not-following-back listing
	NotFollowingBackExceptions []string `yaml:"notFollowingBackExceptions"`
}

type Cache struct {
	ProfileTTLDays int `yaml:"profileTtlDays"`
}

type API struct {
	Addr string `yaml:"addr"`
}

type Metrics struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account: Account{SessionDir: "./session"},
		Storage: Storage{DBPath: "./gramtrack.db"},
		Report:  Reports{Timezone: ""},
		Cache:   Cache{ProfileTTLDays: 10},
		API:     API{Addr: ":5001"},
		Metrics: Metrics{Addr: ""},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Account.Username == "" {
		c.Account.Username = os.Getenv("INSTAGRAM_USERNAME")
	}
	if c.Account.Password == "" {
		c.Account.Password = os.Getenv("INSTAGRAM_PASSWORD")
	}
	if v := os.Getenv("GRAMTRACK_DB"); v != "" && c.Storage.DBPath == "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("EXCEPTION_NOT_FOLLOWING_BACK"); v != "" && len(c.Report.NotFollowingBackExceptions) == 0 {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Report.NotFollowingBackExceptions = append(c.Report.NotFollowingBackExceptions, name)
			}
		}
	}
}

// Validate checks the fields every run needs.
func (c *Config) Validate() error {
	if c.Account.Username == "" || c.Account.Password == "" {
		return errors.New("config: missing account username or password")
	}
	if c.Storage.DBPath == "" {
		return errors.New("config: missing storage dbPath")
	}
	return nil
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
