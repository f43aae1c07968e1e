// Package config manages application configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig sets the HTTP listener parameters.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"authToken"`
}

// DatabaseConfig describes the Postgres connection. Name is the only
// mandatory field: every other part has a local-development default.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Name         string `yaml:"name"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"sslMode"`
	EmulatorHost string `yaml:"emulatorHost"`
}

// CatalogConfig locates the archetype catalog files on disk.
type CatalogConfig struct {
	Dir string `yaml:"dir"`
}

// Config is the full studio service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Catalog  CatalogConfig  `yaml:"catalog"`
}

// Default returns the configuration used when no file or environment
// overrides are supplied. The database name deliberately has no default:
// starting against an unintended database is worse than failing.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:      8080,
			AuthToken: "",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Name:         "",
			User:         "postgres",
			Password:     "",
			SSLMode:      "disable",
			EmulatorHost: "",
		},
		Catalog: CatalogConfig{Dir: "data"},
	}
}

// Load builds the effective configuration: defaults, then the optional YAML
// file at path, then environment variables. A missing file is not an error;
// an unreadable or malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: PORT: invalid value %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv("AUTH_TOKEN"); ok {
		c.Server.AuthToken = v
	}
	if v, ok := os.LookupEnv("DATABASE_HOST"); ok {
		c.Database.Host = v
	}
	if v, ok := os.LookupEnv("DATABASE_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: DATABASE_PORT: invalid value %q", v)
		}
		c.Database.Port = port
	}
	if v, ok := os.LookupEnv("DATABASE_NAME"); ok {
		c.Database.Name = v
	}
	if v, ok := os.LookupEnv("DATABASE_USER"); ok {
		c.Database.User = v
	}
	if v, ok := os.LookupEnv("DATABASE_PASSWORD"); ok {
		c.Database.Password = v
	}
	if v, ok := os.LookupEnv("DATABASE_SSLMODE"); ok {
		c.Database.SSLMode = v
	}
	if v, ok := os.LookupEnv("DATABASE_EMULATOR_HOST"); ok {
		c.Database.EmulatorHost = v
	}
	if v, ok := os.LookupEnv("CATALOG_DIR"); ok {
		c.Catalog.Dir = v
	}
	return nil
}

func (c *Config) normalise() {
	c.Server.AuthToken = strings.TrimSpace(c.Server.AuthToken)
	c.Database.Host = strings.TrimSpace(c.Database.Host)
	c.Database.Name = strings.TrimSpace(c.Database.Name)
	c.Database.User = strings.TrimSpace(c.Database.User)
	c.Database.SSLMode = strings.TrimSpace(c.Database.SSLMode)
	c.Database.EmulatorHost = strings.TrimSpace(c.Database.EmulatorHost)
	c.Catalog.Dir = strings.TrimSpace(c.Catalog.Dir)
	if c.Catalog.Dir == "" {
		c.Catalog.Dir = "data"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
}

// Validate performs semantic validation on the effective configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("config: database.name required (set DATABASE_NAME)")
	}
	if c.Database.EmulatorHost == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port must be in 1..65535, got %d", c.Database.Port)
		}
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// DSN renders a pgx connection string. When EmulatorHost is set it overrides
// host and port so local runs can point at a throwaway database without
// touching the rest of the configuration.
func (c DatabaseConfig) DSN() string {
	host := c.Host
	port := c.Port
	if c.EmulatorHost != "" {
		host = c.EmulatorHost
		port = 0
		if h, p, ok := splitHostPort(c.EmulatorHost); ok {
			host = h
			port = p
		}
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   host,
	}
	if port > 0 {
		u.Host = fmt.Sprintf("%s:%d", host, port)
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	u.Path = "/" + c.Name
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func splitHostPort(hostport string) (string, int, bool) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return "", 0, false
	}
	port, err := strconv.Atoi(hostport[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return hostport[:idx], port, true
}
