package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the root configuration for wabot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	HTTP     HTTPConfig     `json:"http"`
	Fetch    FetchConfig    `json:"fetch"`
	Media    MediaConfig    `json:"media"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	DataDir               string `json:"dataDir"`
	ContentDir            string `json:"contentDir"` // flat directory for stored media and qr.png
	LogLevel              string `json:"logLevel"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	RepliesFile           string `json:"repliesFile,omitempty"` // optional YAML overrides for reply texts
}

type WhatsAppConfig struct {
	Enabled   bool   `json:"enabled"`
	SessionDB string `json:"sessionDb"`
	QRFile    string `json:"qrFile"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type FetchConfig struct {
	TimeoutSeconds int           `json:"timeoutSeconds"`
	MaxBytes       int64         `json:"maxBytes"`
	RenderPages    bool          `json:"renderPages"` // screenshot HTML pages with headless Chrome
	Browser        BrowserConfig `json:"browser"`
}

type BrowserConfig struct {
	ProfileDir string `json:"profileDir,omitempty"`
	Headless   bool   `json:"headless"`
}

type MediaConfig struct {
	MaxBytes int64  `json:"maxBytes"`
	IndexDB  string `json:"indexDb,omitempty"` // empty disables the sqlite index
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.wabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wabot"
	}
	return filepath.Join(home, ".wabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path. A .env file in the working directory,
// when present, is loaded into the environment first so ${VAR} references resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (cfg *Config) expandPaths() {
	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.ContentDir = ExpandPath(cfg.General.ContentDir)
	cfg.General.RepliesFile = ExpandPath(cfg.General.RepliesFile)
	cfg.WhatsApp.SessionDB = ExpandPath(cfg.WhatsApp.SessionDB)
	cfg.Media.IndexDB = ExpandPath(cfg.Media.IndexDB)
	cfg.Fetch.Browser.ProfileDir = ExpandPath(cfg.Fetch.Browser.ProfileDir)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.ContentDir == "" {
		errs = append(errs, "general.contentDir is required")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.WhatsApp.Enabled && cfg.WhatsApp.SessionDB == "" {
		errs = append(errs, "whatsapp.sessionDb is required when whatsapp is enabled")
	}
	if cfg.WhatsApp.QRFile != "" && filepath.Base(cfg.WhatsApp.QRFile) != cfg.WhatsApp.QRFile {
		errs = append(errs, "whatsapp.qrFile must be a bare file name")
	}
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required when telegram is enabled")
	}
	if !cfg.WhatsApp.Enabled && !cfg.Telegram.Enabled {
		errs = append(errs, "at least one of whatsapp or telegram must be enabled")
	}

	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		errs = append(errs, "http.port must be between 0 and 65535")
	}
	if cfg.Fetch.TimeoutSeconds < 0 {
		errs = append(errs, "fetch.timeoutSeconds must be >= 0")
	}
	if cfg.Fetch.MaxBytes < 1 {
		errs = append(errs, "fetch.maxBytes must be >= 1")
	}
	if cfg.Media.MaxBytes < 1 {
		errs = append(errs, "media.maxBytes must be >= 1")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
