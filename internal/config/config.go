// Package config loads actionctl settings from a config file, ACTIONKIT_*
// environment variables and command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/action"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

// EnvPrefix is the prefix of environment variables read by Init.
const EnvPrefix = "ACTIONKIT"

// Setting keys.
const (
	KeyBaseURL      = "base_url"
	KeyTimeout      = "timeout"
	KeyUserAgent    = "user_agent"
	KeyToken        = "token"
	KeyDebug        = "debug"
	KeyHeaders      = "headers"
	KeyCatalog      = "catalog"
	KeyOutput       = "output"
	KeyNoColor      = "no_color"
	KeyCacheType    = "cache.type"
	KeyCacheMaxSize = "cache.max_size"
	KeyNATSURL      = "cache.nats.url"
	KeyNATSSubject  = "cache.nats.subject"
	KeyLogLevel     = "log.level"
	KeyLogFormat    = "log.format"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Static errors for err113 compliance.
var (
	ErrInvalidLogFormat = errors.New("invalid log format")
	ErrInvalidCacheType = errors.New("invalid cache type")
	ErrNATSURLRequired  = errors.New("cache.nats.url is required when cache.type is nats")
	ErrNegativeTimeout  = errors.New("timeout must not be negative")
)

// Settings is the resolved CLI configuration.
type Settings struct {
	BaseURL   string            `json:"base_url"          mapstructure:"base_url"   yaml:"base_url"`
	Timeout   time.Duration     `json:"timeout"           mapstructure:"timeout"    yaml:"timeout"`
	UserAgent string            `json:"user_agent"        mapstructure:"user_agent" yaml:"user_agent"`
	Token     string            `json:"token,omitempty"   mapstructure:"token"      yaml:"token,omitempty"`
	Debug     bool              `json:"debug"             mapstructure:"debug"      yaml:"debug"`
	Headers   map[string]string `json:"headers,omitempty" mapstructure:"headers"    yaml:"headers,omitempty"`
	Catalog   string            `json:"catalog"           mapstructure:"catalog"    yaml:"catalog"`
	Output    string            `json:"output"            mapstructure:"output"     yaml:"output"`
	NoColor   bool              `json:"no_color"          mapstructure:"no_color"   yaml:"no_color"`
	Cache     CacheSettings     `json:"cache"             mapstructure:"cache"      yaml:"cache"`
	Log       LogSettings       `json:"log"               mapstructure:"log"        yaml:"log"`
}

// CacheSettings selects the cache and invalidation backend.
type CacheSettings struct {
	Type    string       `json:"type"     mapstructure:"type"     yaml:"type"`
	MaxSize int          `json:"max_size" mapstructure:"max_size" yaml:"max_size"`
	NATS    NATSSettings `json:"nats"     mapstructure:"nats"     yaml:"nats"`
}

// NATSSettings configures NATS invalidation fan-out.
type NATSSettings struct {
	URL     string `json:"url"     mapstructure:"url"     yaml:"url"`
	Subject string `json:"subject" mapstructure:"subject" yaml:"subject"`
}

// LogSettings configures the slog handler.
type LogSettings struct {
	Level  string `json:"level"  mapstructure:"level"  yaml:"level"`
	Format string `json:"format" mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default value of every key on v. Keys need a
// default for AutomaticEnv to reach them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeyTimeout, constants.DefaultHTTPTimeout)
	v.SetDefault(KeyUserAgent, constants.DefaultUserAgent)
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyCatalog, "")
	v.SetDefault(KeyOutput, constants.FormatTable)
	v.SetDefault(KeyNoColor, false)
	v.SetDefault(KeyCacheType, string(tagcache.CacheTypeMemory))
	v.SetDefault(KeyCacheMaxSize, constants.DefaultCacheSize)
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeyNATSSubject, constants.DefaultInvalidationSubject)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, LogFormatText)
}

// DefaultConfigDir returns $HOME/.actionkit.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".actionkit"), nil
}

// Init wires environment variables and the config file into v and reads
// the file. Without cfgFile, $HOME/.actionkit/config.yml is used when it
// exists. It returns the path of the file read, or "".
func Init(v *viper.Viper, cfgFile string) (string, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		configDir, err := DefaultConfigDir()
		if err != nil {
			return "", err
		}

		v.AddConfigPath(configDir)
		v.SetConfigType("yml")
		v.SetConfigName("config")
	}

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}

		return "", fmt.Errorf("failed to read config: %w", err)
	}

	return v.ConfigFileUsed(), nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var settings Settings

	err := v.Unmarshal(&settings)
	if err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	err = settings.Validate()
	if err != nil {
		return nil, err
	}

	return &settings, nil
}

// Validate checks enumerated values. The base URL is checked by actions when
// they are called.
func (s *Settings) Validate() error {
	var errs []error

	if !slices.Contains([]string{constants.FormatTable, constants.FormatJSON, constants.FormatYAML}, s.Output) {
		errs = append(errs, fmt.Errorf("%w: %q", constants.ErrInvalidOutput, s.Output))
	}

	if s.Timeout < 0 {
		errs = append(errs, ErrNegativeTimeout)
	}

	_, err := ParseLevel(s.Log.Level)
	if err != nil {
		errs = append(errs, err)
	}

	if s.Log.Format != LogFormatText && s.Log.Format != LogFormatJSON {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, s.Log.Format))
	}

	switch tagcache.CacheType(s.Cache.Type) {
	case tagcache.CacheTypeMemory, tagcache.CacheTypeNone:
	case tagcache.CacheTypeNATS:
		if s.Cache.NATS.URL == "" {
			errs = append(errs, ErrNATSURLRequired)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidCacheType, s.Cache.Type))
	}

	return errors.Join(errs...)
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(level string) (slog.Level, error) {
	var parsed slog.Level

	err := parsed.UnmarshalText([]byte(level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", constants.ErrInvalidLogLevel, level)
	}

	return parsed, nil
}

// NewLogger builds a slog logger writing to w. Debug forces debug level.
func (s *Settings) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(s.Log.Level)
	if err != nil {
		level = slog.LevelWarn
	}

	if s.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if s.Log.Format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// CacheConfig converts the cache settings.
func (s *Settings) CacheConfig() *tagcache.CacheConfig {
	config := &tagcache.CacheConfig{
		Type:   tagcache.CacheType(s.Cache.Type),
		Memory: &tagcache.MemoryCacheConfig{MaxSize: s.Cache.MaxSize},
	}

	if config.Type == tagcache.CacheTypeNATS {
		config.NATS = &tagcache.NATSConfig{
			URL:     s.Cache.NATS.URL,
			Subject: s.Cache.NATS.Subject,
			Name:    "actionctl",
			MaxSize: s.Cache.MaxSize,
		}
	}

	return config
}

// FactoryConfig converts the settings into an action factory config. Static
// headers are added to requests that do not set them; a token becomes a
// bearer Authorization header.
func (s *Settings) FactoryConfig(logger action.Logger, invalidator tagcache.Invalidator) *action.Config {
	config := &action.Config{
		BaseURL:     s.BaseURL,
		Timeout:     s.Timeout,
		UserAgent:   s.UserAgent,
		Debug:       s.Debug,
		Logger:      logger,
		Invalidator: invalidator,
	}

	if len(s.Headers) > 0 {
		config.RequestInterceptors = append(config.RequestInterceptors, action.HeaderInterceptor(s.Headers))
	}

	if s.Token != "" {
		config.RequestInterceptors = append(config.RequestInterceptors,
			action.AuthenticationInterceptor(action.StaticTokenProvider(s.Token)))
	}

	if logger != nil {
		config.ResponseInterceptors = append(config.ResponseInterceptors, action.LoggingResponseInterceptor(logger))
	}

	return config
}

// Redacted returns a copy with secrets masked, for display.
func (s *Settings) Redacted() Settings {
	redacted := *s
	if redacted.Token != "" {
		redacted.Token = constants.MaskedSecret
	}

	if len(s.Headers) > 0 {
		redacted.Headers = make(map[string]string, len(s.Headers))

		for key, value := range s.Headers {
			if strings.EqualFold(key, constants.HeaderAuthorization) {
				value = constants.MaskedSecret
			}

			redacted.Headers[key] = value
		}
	}

	return redacted
}
