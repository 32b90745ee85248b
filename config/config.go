// Package config loads stepagent settings from defaults, a stepagent.yaml
// file, a .env file, STEPAGENT_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/martinemde/stepagent/agentloop"
	"github.com/martinemde/stepagent/unifiedllm"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. STEPAGENT_MODEL.
	EnvPrefix = "STEPAGENT"
	// FileName is the config file name without extension.
	FileName = "stepagent"

	DefaultProvider = "gemini"
	DefaultModel    = "gemini-2.0-flash"
	DefaultProfile  = "coder"
)

// Keys understood by Load.
const (
	KeyProvider            = "provider"
	KeyModel               = "model"
	KeyBaseURL             = "base_url"
	KeyAPIKey              = "api_key"
	KeyProfile             = "profile"
	KeyWorkDir             = "work_dir"
	KeyTemperature         = "temperature"
	KeyMaxTokens           = "max_tokens"
	KeyCommandTimeout      = "command_timeout"
	KeyMaxRetries          = "max_retries"
	KeyRetryBaseDelay      = "retry_base_delay"
	KeyRetryMaxDelay       = "retry_max_delay"
	KeyMaxBackendFailures  = "max_backend_failures"
	KeyLoopDetectionWindow = "loop_detection_window"
	KeyInstructions        = "instructions"
	KeyProjectDocs         = "project_docs"
	KeyLogLevel            = "log_level"
	KeyLogFile             = "log_file"
	KeyColor               = "color"
	KeyHistoryFile         = "history_file"
)

// OpenAICompatible providers are served by unifiedllm.OpenAIAdapter; every
// other supported provider goes through gollm.
var OpenAICompatible = []string{"gemini", "openai"}

// Providers lists every supported provider.
var Providers = []string{"gemini", "openai", "anthropic", "groq", "mistral", "ollama", "cohere", "deepseek", "openrouter"}

// apiKeyEnv names the conventional key variable per provider.
var apiKeyEnv = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"groq":       "GROQ_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"cohere":     "COHERE_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// APIKeyEnv returns the environment variable holding provider's API key, or
// "" when the provider needs none.
func APIKeyEnv(provider string) string {
	return apiKeyEnv[provider]
}

// Config is the resolved configuration.
type Config struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Profile  string `mapstructure:"profile"`
	WorkDir  string `mapstructure:"work_dir"`

	// Temperature is nil unless set explicitly.
	Temperature *float64 `mapstructure:"-"`
	MaxTokens   int      `mapstructure:"max_tokens"`

	CommandTimeout      time.Duration `mapstructure:"command_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay       time.Duration `mapstructure:"retry_max_delay"`
	MaxBackendFailures  int           `mapstructure:"max_backend_failures"`
	LoopDetectionWindow int           `mapstructure:"loop_detection_window"`

	Instructions string `mapstructure:"instructions"`
	ProjectDocs  bool   `mapstructure:"project_docs"`

	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	Color       bool   `mapstructure:"color"`
	HistoryFile string `mapstructure:"history_file"`

	// ConfigFile is the config file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// New returns a viper instance with defaults and environment binding set
// up. Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default for every key except temperature,
// which stays unset so the provider default applies.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyProvider, DefaultProvider)
	v.SetDefault(KeyModel, "")
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeyProfile, DefaultProfile)
	v.SetDefault(KeyWorkDir, "")
	v.SetDefault(KeyMaxTokens, 0)
	v.SetDefault(KeyCommandTimeout, time.Duration(0))
	v.SetDefault(KeyMaxRetries, 2)
	v.SetDefault(KeyRetryBaseDelay, time.Second)
	v.SetDefault(KeyRetryMaxDelay, 30*time.Second)
	v.SetDefault(KeyMaxBackendFailures, 0)
	v.SetDefault(KeyLoopDetectionWindow, 6)
	v.SetDefault(KeyInstructions, "")
	v.SetDefault(KeyProjectDocs, true)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyColor, true)
	v.SetDefault(KeyHistoryFile, "")
}

// SearchPaths returns the directories searched for stepagent.yaml.
func SearchPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, FileName))
	}
	return paths
}

// LoadDotEnv exports the variables of a .env file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configFile (or stepagent.yaml from SearchPaths when empty),
// resolves derived values and validates the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	if v.IsSet(KeyTemperature) {
		t := v.GetFloat64(KeyTemperature)
		cfg.Temperature = &t
	}

	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve fills values that depend on other settings.
func (c *Config) resolve() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Profile = strings.ToLower(strings.TrimSpace(c.Profile))

	if c.Model == "" {
		switch {
		case c.Provider == DefaultProvider:
			c.Model = DefaultModel
		default:
			if info := unifiedllm.GetLatestModel(c.Provider, ""); info != nil {
				c.Model = info.ID
			}
		}
	}
	if c.APIKey == "" {
		if name := APIKeyEnv(c.Provider); name != "" {
			c.APIKey = os.Getenv(name)
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !slices.Contains(Providers, c.Provider) {
		return fmt.Errorf("unsupported provider %q (supported: %s)", c.Provider, strings.Join(Providers, ", "))
	}
	if _, err := agentloop.ProfileByName(c.Profile); err != nil {
		return err
	}
	if c.Model == "" {
		return fmt.Errorf("no model configured for provider %q", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature %v out of range [0, 2]", *c.Temperature)
	}

	for _, lim := range []struct {
		key   string
		value int64
	}{
		{KeyMaxTokens, int64(c.MaxTokens)},
		{KeyCommandTimeout, int64(c.CommandTimeout)},
		{KeyMaxRetries, int64(c.MaxRetries)},
		{KeyRetryBaseDelay, int64(c.RetryBaseDelay)},
		{KeyRetryMaxDelay, int64(c.RetryMaxDelay)},
		{KeyMaxBackendFailures, int64(c.MaxBackendFailures)},
		{KeyLoopDetectionWindow, int64(c.LoopDetectionWindow)},
	} {
		if lim.value < 0 {
			return fmt.Errorf("%s must not be negative", lim.key)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// UsesOpenAIAdapter reports whether the provider is served by the
// OpenAI-compatible adapter rather than gollm.
func (c *Config) UsesOpenAIAdapter() bool {
	return slices.Contains(OpenAICompatible, c.Provider)
}

// RetryPolicy returns the backoff shared by the client middleware and the
// session's re-requests.
func (c *Config) RetryPolicy() unifiedllm.RetryPolicy {
	return unifiedllm.RetryPolicy{
		MaxRetries:        c.MaxRetries,
		BaseDelay:         c.RetryBaseDelay.Seconds(),
		MaxDelay:          c.RetryMaxDelay.Seconds(),
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// SessionConfig converts the configuration for agentloop.NewSession.
func (c *Config) SessionConfig() agentloop.SessionConfig {
	sc := agentloop.DefaultSessionConfig()
	sc.Model = c.Model
	sc.Provider = c.Provider
	sc.Temperature = c.Temperature
	if c.MaxTokens > 0 {
		n := c.MaxTokens
		sc.MaxTokens = &n
	}
	sc.EnableLoopDetection = c.LoopDetectionWindow > 1
	sc.LoopDetectionWindow = c.LoopDetectionWindow
	sc.BackendRetry = c.RetryPolicy()
	sc.MaxBackendFailures = c.MaxBackendFailures
	sc.Instructions = c.Instructions
	sc.LoadProjectDocs = c.ProjectDocs
	return sc
}
