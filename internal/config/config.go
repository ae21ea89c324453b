// Package config provides configuration for the ClipForge agent.
// Values come from environment variables layered over an optional
// config.yaml in the data directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort             = 8686
	DefaultLogLevel         = "info"
	DefaultDataDir          = ".clipforge"
	DefaultAutosaveDebounce = 3 * time.Second
	DefaultGenerateBaseURL  = "https://api.clipforge.dev/v1"
	DefaultGeneratePoll     = 5 * time.Second

	// Environment variable names
	EnvPort             = "CLIPFORGE_PORT"
	EnvLogLevel         = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir          = "CLIPFORGE_DATA_DIR"
	EnvGenerateBaseURL  = "CLIPFORGE_GENERATE_URL"
	EnvGenerateToken    = "CLIPFORGE_GENERATE_TOKEN"
	EnvMediaDir         = "CLIPFORGE_MEDIA_DIR"
	EnvExportDir        = "CLIPFORGE_EXPORT_DIR"
	EnvAutosaveDebounce = "CLIPFORGE_AUTOSAVE_DEBOUNCE"
	EnvHeadless         = "CLIPFORGE_HEADLESS"

	// Database filename
	DBFilename = "clipforge.db"

	// Config file, read from the data directory when present
	ConfigFilename = "config.yaml"
)

// Config defines the application configuration surface.
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	MediaDir() string
	ExportDir() string
	AutosaveDebounce() time.Duration
	GenerateBaseURL() string
	GenerateToken() string
	GeneratePollInterval() time.Duration
	Headless() bool
}

// fileConfig mirrors the optional config.yaml.
type fileConfig struct {
	Port             int    `yaml:"port"`
	LogLevel         string `yaml:"log_level"`
	MediaDir         string `yaml:"media_dir"`
	ExportDir        string `yaml:"export_dir"`
	AutosaveDebounce string `yaml:"autosave_debounce"`
	Headless         *bool  `yaml:"headless"`
	Generate         struct {
		BaseURL      string `yaml:"base_url"`
		Token        string `yaml:"token"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"generate"`
}

// EnvConfig resolves configuration as defaults < config.yaml < env.
type EnvConfig struct {
	port             int
	logLevel         string
	dataDir          string
	mediaDir         string
	exportDir        string
	autosaveDebounce time.Duration
	generateBaseURL  string
	generateToken    string
	generatePoll     time.Duration
	headless         bool
}

// New builds the configuration. The data directory is resolved first
// (env only) so the config file can live inside it.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		autosaveDebounce: DefaultAutosaveDebounce,
		generateBaseURL:  DefaultGenerateBaseURL,
		generatePoll:     DefaultGeneratePoll,
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if err := cfg.applyFile(filepath.Join(cfg.dataDir, ConfigFilename)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.mediaDir == "" {
		cfg.mediaDir = filepath.Join(cfg.dataDir, "media")
	}
	if cfg.exportDir == "" {
		cfg.exportDir = filepath.Join(cfg.dataDir, "exports")
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.Port != 0 {
		if fc.Port < 1 || fc.Port > 65535 {
			return fmt.Errorf("%s: port must be between 1 and 65535", path)
		}
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.MediaDir != "" {
		c.mediaDir = fc.MediaDir
	}
	if fc.ExportDir != "" {
		c.exportDir = fc.ExportDir
	}
	if fc.AutosaveDebounce != "" {
		d, err := time.ParseDuration(fc.AutosaveDebounce)
		if err != nil {
			return fmt.Errorf("%s: autosave_debounce: %w", path, err)
		}
		c.autosaveDebounce = d
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	if fc.Generate.BaseURL != "" {
		c.generateBaseURL = fc.Generate.BaseURL
	}
	if fc.Generate.Token != "" {
		c.generateToken = fc.Generate.Token
	}
	if fc.Generate.PollInterval != "" {
		d, err := time.ParseDuration(fc.Generate.PollInterval)
		if err != nil {
			return fmt.Errorf("%s: generate.poll_interval: %w", path, err)
		}
		c.generatePoll = d
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		c.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if md := os.Getenv(EnvMediaDir); md != "" {
		c.mediaDir = md
	}
	if ed := os.Getenv(EnvExportDir); ed != "" {
		c.exportDir = ed
	}
	if ad := os.Getenv(EnvAutosaveDebounce); ad != "" {
		d, err := time.ParseDuration(ad)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAutosaveDebounce, err)
		}
		c.autosaveDebounce = d
	}
	if u := os.Getenv(EnvGenerateBaseURL); u != "" {
		c.generateBaseURL = u
	}
	if tok := os.Getenv(EnvGenerateToken); tok != "" {
		c.generateToken = tok
	}
	if hl := os.Getenv(EnvHeadless); hl != "" {
		v, err := strconv.ParseBool(hl)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = v
	}
	return nil
}

// Port returns the HTTP server port.
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error).
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path.
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file.
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// MediaDir returns the directory imported media files are stored in.
func (c *EnvConfig) MediaDir() string {
	return c.mediaDir
}

// ExportDir returns the default directory for timeline exports.
func (c *EnvConfig) ExportDir() string {
	return c.exportDir
}

// AutosaveDebounce returns the idle interval before a dirty project is
// persisted.
func (c *EnvConfig) AutosaveDebounce() time.Duration {
	return c.autosaveDebounce
}

func (c *EnvConfig) GenerateBaseURL() string {
	return c.generateBaseURL
}

func (c *EnvConfig) GenerateToken() string {
	return c.generateToken
}

func (c *EnvConfig) GeneratePollInterval() time.Duration {
	return c.generatePoll
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
