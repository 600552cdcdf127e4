package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SSHDOCK_BROKER_URL.
const EnvPrefix = "SSHDOCK"

// Device kinds served by the mock broker.
const (
	KindEcho  = "echo"
	KindLocal = "local"
	KindSSH   = "ssh"
	KindError = "error"
)

type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Features   FeaturesConfig   `yaml:"features"`
	Appearance AppearanceConfig `yaml:"appearance"`
	History    HistoryConfig    `yaml:"history"`
	Log        LogConfig        `yaml:"log"`
	Mock       MockConfig       `yaml:"mock"`
}

type BrokerConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	WebURL string `yaml:"web_url" split_words:"true"`
}

type FeaturesConfig struct {
	FirewallRules bool `yaml:"firewall_rules" split_words:"true"`
}

type AppearanceConfig struct {
	Theme   string `yaml:"theme"`
	Compact bool   `yaml:"compact"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Limit   int    `yaml:"limit"`
}

type LogConfig struct {
	Debug    bool   `yaml:"debug"`
	File     string `yaml:"file"`
	MaxFiles int    `yaml:"max_files" split_words:"true"`
}

type MockConfig struct {
	Host    string       `yaml:"host"`
	Port    int          `yaml:"port"`
	Token   string       `yaml:"token"`
	Devices []MockDevice `yaml:"devices" ignored:"true"`
}

// MockDevice is one device served by the mock broker. Password, when set,
// is checked on the socket so that a wrong one surfaces as an ERROR frame.
type MockDevice struct {
	UID      string `yaml:"uid"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Offline  bool   `yaml:"offline"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Error is the raw backend string sent by devices of kind "error".
	Error string `yaml:"error"`
	// Host and Port address the real server behind a device of kind "ssh".
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Shell overrides the program started for a device of kind "local".
	Shell string `yaml:"shell"`
}

func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:    "http://127.0.0.1:8080",
			WebURL: "http://127.0.0.1:8080",
		},
		Appearance: AppearanceConfig{
			Theme: "dark",
		},
		History: HistoryConfig{
			Enabled: true,
			Limit:   50,
		},
		Log: LogConfig{
			MaxFiles: 20,
		},
		Mock: MockConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Devices: []MockDevice{
				{UID: "echo-1", Name: "echo", Kind: KindEcho},
				{UID: "local-1", Name: "localhost", Kind: KindLocal},
				{UID: "guarded-1", Name: "guarded", Kind: KindEcho, Username: "root", Password: "secret"},
				{UID: "offline-1", Name: "offline", Kind: KindEcho, Offline: true},
				{
					UID:   "firewall-1",
					Name:  "firewalled",
					Kind:  KindError,
					Error: "you cannot connect to this device because a firewall rule block your connection",
				},
			},
		},
	}
}

// DefaultPath is config.yaml under the user's configuration directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "sshdock", "config.yaml")
}

// Load reads path over the defaults and then applies SSHDOCK_* environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later at connect time.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Broker.URL)
	if err != nil {
		return fmt.Errorf("broker.url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("broker.url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker.url: missing host")
	}
	if c.Mock.Port < 0 || c.Mock.Port > 65535 {
		return fmt.Errorf("mock.port: %d out of range", c.Mock.Port)
	}

	seen := map[string]bool{}
	for i, d := range c.Mock.Devices {
		if d.UID == "" {
			return fmt.Errorf("mock.devices[%d]: missing uid", i)
		}
		if seen[d.UID] {
			return fmt.Errorf("mock.devices[%d]: duplicate uid %q", i, d.UID)
		}
		seen[d.UID] = true
		switch d.Kind {
		case KindEcho, KindLocal:
		case KindSSH:
			if d.Host == "" {
				return fmt.Errorf("mock.devices[%d]: ssh device needs a host", i)
			}
		case KindError:
			if d.Error == "" {
				return fmt.Errorf("mock.devices[%d]: error device needs an error", i)
			}
		default:
			return fmt.Errorf("mock.devices[%d]: unknown kind %q", i, d.Kind)
		}
	}
	return nil
}

// ConsoleURL resolves an admin-console path against the web URL.
func (c *Config) ConsoleURL(target string) string {
	base, err := url.Parse(c.Broker.WebURL)
	if err != nil || base.Host == "" {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return base.ResolveReference(ref).String()
}
