package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/tentspec/packages/core/env"
)

// Config represents the tentspec configuration
type Config struct {
	// Server is the base URL of the Tent server under test.
	Server      string      `yaml:"server,omitempty" json:"server,omitempty"`
	Credentials Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty"`

	DatabaseURL string `yaml:"databaseURL,omitempty" json:"databaseURL,omitempty"`
	LocalAddr   string `yaml:"localAddr,omitempty" json:"localAddr,omitempty"`
	// LocalURL is how the server under test reaches the embedded peer.
	// Defaults to the listener address.
	LocalURL string `yaml:"localURL,omitempty" json:"localURL,omitempty"`

	Timeout      int     `yaml:"timeout,omitempty" json:"timeout,omitempty"`           // milliseconds
	AsyncTimeout int     `yaml:"asyncTimeout,omitempty" json:"asyncTimeout,omitempty"` // milliseconds
	AsyncTick    int     `yaml:"asyncTick,omitempty" json:"asyncTick,omitempty"`       // milliseconds
	RateLimit    float64 `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`       // requests per second, 0 = unlimited
	WaitFor      int     `yaml:"waitFor,omitempty" json:"waitFor,omitempty"`           // milliseconds to wait for the server to answer
	ValidateSSL  *bool   `yaml:"validateSSL,omitempty" json:"validateSSL,omitempty"`
	Proxy        string  `yaml:"proxy,omitempty" json:"proxy,omitempty"`

	Headers    map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	SchemaDir  string            `yaml:"schemaDir,omitempty" json:"schemaDir,omitempty"`
	Validators []string          `yaml:"validators,omitempty" json:"validators,omitempty"`

	Reporters []string `yaml:"reporters,omitempty" json:"reporters,omitempty"`
	OutputDir string   `yaml:"outputDir,omitempty" json:"outputDir,omitempty"`
	Verbose   *bool    `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	NoColor   *bool    `yaml:"noColor,omitempty" json:"noColor,omitempty"`
	LogLevel  string   `yaml:"logLevel,omitempty" json:"logLevel,omitempty"`
	LogFormat string   `yaml:"logFormat,omitempty" json:"logFormat,omitempty"`
}

// Credentials are the Hawk MAC credentials for the remote server.
type Credentials struct {
	ID        string `yaml:"macKeyID,omitempty" json:"macKeyID,omitempty"`
	Algorithm string `yaml:"macAlgorithm,omitempty" json:"macAlgorithm,omitempty"`
	Key       string `yaml:"macKey,omitempty" json:"macKey,omitempty"`
}

// Empty reports whether no credentials were configured.
func (c Credentials) Empty() bool {
	return c.ID == "" && c.Key == ""
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c *Config) CorrelationTimeout() time.Duration {
	return time.Duration(c.AsyncTimeout) * time.Millisecond
}

func (c *Config) WaitForDuration() time.Duration {
	return time.Duration(c.WaitFor) * time.Millisecond
}

func (c *Config) CorrelationTick() time.Duration {
	return time.Duration(c.AsyncTick) * time.Millisecond
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"tentspec.yaml",
	"tentspec.yml",
	".tentspec.yaml",
	".tentspec.json",
}

// LoadConfig loads configuration from path, or searches the current
// directory when path is empty. Environment overrides are applied.
func LoadConfig(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path != "" {
		cfg, err = loadConfigFromFile(path)
	} else {
		cfg, err = FindAndLoadConfig(".")
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	if path := FindConfig(dir); path != "" {
		return loadConfigFromFile(path)
	}
	return DefaultConfig(), nil
}

// FindConfig returns the first config file present in dir, or "".
func FindConfig(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	expanded := env.Expand(string(data), os.LookupEnv)
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvRemoteServer = "TENT_REMOTE_SERVER"
	EnvMACKeyID     = "TENT_MAC_KEY_ID"
	EnvMACAlgorithm = "TENT_MAC_ALGORITHM"
	EnvMACKey       = "TENT_MAC_KEY"
	EnvDatabaseURL  = "TENT_DATABASE_URL"
	EnvLocalAddr    = "TENT_LOCAL_ADDR"
	EnvLocalURL     = "TENT_LOCAL_URL"
	EnvAsyncTimeout = "TENT_ASYNC_TIMEOUT"
)

// ApplyEnv overrides fields from TENT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvRemoteServer, &c.Server)
	set(EnvMACKeyID, &c.Credentials.ID)
	set(EnvMACAlgorithm, &c.Credentials.Algorithm)
	set(EnvMACKey, &c.Credentials.Key)
	set(EnvDatabaseURL, &c.DatabaseURL)
	set(EnvLocalAddr, &c.LocalAddr)
	set(EnvLocalURL, &c.LocalURL)

	if v, ok := lookup(EnvAsyncTimeout); ok {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.AsyncTimeout = ms
		}
	}
}

// Validate reports settings the run cannot start without.
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("no server configured: set server in %s or %s", ConfigFilenames[0], EnvRemoteServer)
	}
	if !c.Credentials.Empty() && (c.Credentials.ID == "" || c.Credentials.Key == "") {
		return fmt.Errorf("incomplete MAC credentials: both %s and %s are required", EnvMACKeyID, EnvMACKey)
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.Server != "" {
		result.Server = other.Server
	}
	if !other.Credentials.Empty() {
		result.Credentials = other.Credentials
	}
	if other.DatabaseURL != "" {
		result.DatabaseURL = other.DatabaseURL
	}
	if other.LocalAddr != "" {
		result.LocalAddr = other.LocalAddr
	}
	if other.LocalURL != "" {
		result.LocalURL = other.LocalURL
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.AsyncTimeout > 0 {
		result.AsyncTimeout = other.AsyncTimeout
	}
	if other.AsyncTick > 0 {
		result.AsyncTick = other.AsyncTick
	}
	if other.WaitFor > 0 {
		result.WaitFor = other.WaitFor
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.SchemaDir != "" {
		result.SchemaDir = other.SchemaDir
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		result.LogFormat = other.LogFormat
	}

	// Boolean flags - only override if explicitly set in other config
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

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
	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}
	if len(other.Validators) > 0 {
		result.Validators = other.Validators
	}

	return &result
}

// SaveConfig writes the configuration as YAML.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
