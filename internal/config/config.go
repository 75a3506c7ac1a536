package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FileName = "taskgate.yml"
	// AdminEmailsEnv extends admins.emails with a comma-separated list.
	AdminEmailsEnv = "TASKGATE_ADMIN_EMAILS"
)

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config models taskgate.yml.
type Config struct {
	Admins struct {
		Emails []string `yaml:"emails"`
	} `yaml:"admins"`
	Partners struct {
		Accounts []PartnerAccount `yaml:"accounts"`
	} `yaml:"partners"`
	DefaultProvider DefaultProvider `yaml:"default_provider"`
	Autosave        struct {
		Delay time.Duration `yaml:"delay"`
	} `yaml:"autosave"`
	Store struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"store"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		DevLogin  bool          `yaml:"dev_login"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level"`
		Env   string `yaml:"env"`
	} `yaml:"log"`
	Metrics struct {
		Prefix string `yaml:"prefix"`
	} `yaml:"metrics"`
	Blob struct {
		Dir           string `yaml:"dir"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"blob"`
}

type PartnerAccount struct {
	Email      string `yaml:"email"`
	ProviderID string `yaml:"provider_id"`
}

// DefaultProvider seeds the first-party provider when the store has none.
type DefaultProvider struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Domain         string `yaml:"domain"`
	PackageIOS     string `yaml:"package_name_ios"`
	PackageAndroid string `yaml:"package_name_android"`
	IconPathLight  string `yaml:"icon_path_light"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tg init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.DefaultProvider.ID == "" {
		return fmt.Errorf("config.default_provider.id is required")
	}
	if !slugRe.MatchString(c.DefaultProvider.ID) {
		return fmt.Errorf("config.default_provider.id %q must be a lowercase slug", c.DefaultProvider.ID)
	}
	for i, a := range c.Partners.Accounts {
		if strings.TrimSpace(a.Email) == "" {
			return fmt.Errorf("config.partners.accounts[%d].email is required", i)
		}
		if a.ProviderID == "" {
			return fmt.Errorf("config.partners.accounts[%d].provider_id is required", i)
		}
		if a.ProviderID == c.DefaultProvider.ID {
			return fmt.Errorf("config.partners.accounts[%d] cannot act as the default provider", i)
		}
	}
	for i, e := range c.Admins.Emails {
		if strings.TrimSpace(e) == "" {
			return fmt.Errorf("config.admins.emails[%d] is empty", i)
		}
	}
	if c.Autosave.Delay < 0 {
		return fmt.Errorf("config.autosave.delay must not be negative")
	}
	switch c.Store.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config.store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config.store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if bp := c.Server.BasePath; bp != "" && !strings.HasPrefix(bp, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	return nil
}

// AdminEmails merges admins.emails with the TASKGATE_ADMIN_EMAILS env list.
func (c *Config) AdminEmails() []string {
	out := append([]string{}, c.Admins.Emails...)
	for _, part := range strings.Split(os.Getenv(AdminEmailsEnv), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// PartnerMap returns the static email to provider id mapping.
func (c *Config) PartnerMap() map[string]string {
	m := make(map[string]string, len(c.Partners.Accounts))
	for _, a := range c.Partners.Accounts {
		m[a.Email] = a.ProviderID
	}
	return m
}

func (c *Config) AutosaveDelay() time.Duration {
	if c.Autosave.Delay == 0 {
		return 2 * time.Second
	}
	return c.Autosave.Delay
}

func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTL == 0 {
		return 12 * time.Hour
	}
	return c.Auth.TokenTTL
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `admins:
  emails: []

partners:
  accounts: []

default_provider:
  id: taskgate
  name: TaskGate
  domain: taskgate.app
  icon_path_light: https://taskgate.app/icon.png

autosave:
  delay: 2s

store:
  driver: sqlite

server:
  addr: 127.0.0.1:8080
  base_path: /v1

auth:
  dev_login: false
  token_ttl: 12h

log:
  level: info
  env: production

metrics:
  prefix: taskgate

blob:
  dir: .taskgate/blobs
  public_base_url: http://127.0.0.1:8080/blobs
`
