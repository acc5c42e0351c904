package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the relay configuration
type Config struct {
	Timeout         int               `json:"timeout,omitempty" yaml:"timeout,omitempty"` // milliseconds
	FollowRedirects *bool             `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty"`
	MaxRedirects    int               `json:"maxRedirects,omitempty" yaml:"maxRedirects,omitempty"`
	ValidateSSL     *bool             `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty"`
	Proxy           string            `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // Default headers for all requests
	HistoryPath     string            `json:"historyPath,omitempty" yaml:"historyPath,omitempty"`
	SessionPath     string            `json:"sessionPath,omitempty" yaml:"sessionPath,omitempty"`
	LogPath         string            `json:"logPath,omitempty" yaml:"logPath,omitempty"`
	RecordHistory   *bool             `json:"recordHistory,omitempty" yaml:"recordHistory,omitempty"`
	MaxConcurrent   int               `json:"maxConcurrent,omitempty" yaml:"maxConcurrent,omitempty"` // 0 = unbounded
	Rate            float64           `json:"rate,omitempty" yaml:"rate,omitempty"`                   // dispatches per second, 0 = unbounded
	Burst           int               `json:"burst,omitempty" yaml:"burst,omitempty"`
	Debug           *bool             `json:"debug,omitempty" yaml:"debug,omitempty"`
	NoColor         *bool             `json:"noColor,omitempty" yaml:"noColor,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetRecordHistory returns whether finished requests are recorded, defaulting to true
func (c *Config) GetRecordHistory() bool {
	return getBool(c.RecordHistory, true)
}

// GetDebug returns the debug setting, defaulting to false
func (c *Config) GetDebug() bool {
	return getBool(c.Debug, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// TimeoutDuration is Timeout as a duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// ResolvedHistoryPath returns HistoryPath or the default under the data dir.
func (c *Config) ResolvedHistoryPath() (string, error) {
	if c.HistoryPath != "" {
		return c.HistoryPath, nil
	}
	return defaultDataFile("history.db")
}

// ResolvedSessionPath returns SessionPath or the default under the data dir.
func (c *Config) ResolvedSessionPath() (string, error) {
	if c.SessionPath != "" {
		return c.SessionPath, nil
	}
	return defaultDataFile("session.yaml")
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".relay.config.json",
	"relay.config.json",
	".relay.yaml",
	".relay.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return config, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.HistoryPath != "" {
		result.HistoryPath = other.HistoryPath
	}
	if other.SessionPath != "" {
		result.SessionPath = other.SessionPath
	}
	if other.LogPath != "" {
		result.LogPath = other.LogPath
	}
	if other.MaxConcurrent > 0 {
		result.MaxConcurrent = other.MaxConcurrent
	}
	if other.Rate > 0 {
		result.Rate = other.Rate
	}
	if other.Burst > 0 {
		result.Burst = other.Burst
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.RecordHistory != nil {
		result.RecordHistory = other.RecordHistory
	}
	if other.Debug != nil {
		result.Debug = other.Debug
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	// Merge headers
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return &result
}

// Env variable names read by ApplyEnv.
const (
	EnvDebug       = "RELAY_DEBUG"
	EnvHistoryPath = "RELAY_HISTORY_PATH"
	EnvSessionPath = "RELAY_SESSION_PATH"
	EnvTimeout     = "RELAY_TIMEOUT"
)

// ApplyEnv overrides fields from RELAY_* environment variables. Malformed
// values are reported, not ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		c.Debug = BoolPtr(debug)
	}

	if v, ok := lookup(EnvHistoryPath); ok && v != "" {
		c.HistoryPath = v
	}

	if v, ok := lookup(EnvSessionPath); ok && v != "" {
		c.SessionPath = v
	}

	if v, ok := lookup(EnvTimeout); ok && v != "" {
		ms, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = ms
	}

	return nil
}

// parseTimeout accepts a duration ("5s") or plain milliseconds ("5000").
func parseTimeout(v string) (int, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative timeout %d", ms)
		}
		return ms, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %s", d)
	}
	return int(d.Milliseconds()), nil
}

// SaveConfig saves the configuration to a file, as YAML or JSON by extension
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DataDir is where relay keeps history and sessions by default (~/.relay).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".relay"), nil
}

func defaultDataFile(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine data directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}
