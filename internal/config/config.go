package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/forest-guardian/agrosense-ndvi/internal/properties"
)

// Config represents the complete application configuration
type Config struct {
	Copernicus   CopernicusConfig   `mapstructure:"copernicus"`
	Resolver     ResolverConfig     `mapstructure:"resolver"`
	Aggregator   AggregatorConfig   `mapstructure:"aggregator"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// CopernicusConfig holds the identity, catalog and processing endpoints
type CopernicusConfig struct {
	TokenURL         string        `mapstructure:"token_url" validate:"required,url"`
	STACURL          string        `mapstructure:"stac_url" validate:"required,url"`
	OpenEOURL        string        `mapstructure:"openeo_url" validate:"required,url"`
	OIDCProvider     string        `mapstructure:"oidc_provider" validate:"required"`
	ClientID         string        `mapstructure:"client_id" validate:"required"`
	ClientSecret     string        `mapstructure:"client_secret" validate:"required"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"min=1s"`
	TokenEarlyExpiry time.Duration `mapstructure:"token_early_expiry" validate:"min=0"`
}

// ResolverConfig holds the scene search parameters
type ResolverConfig struct {
	Collection    string  `mapstructure:"collection" validate:"required"`
	ToleranceDays int     `mapstructure:"tolerance_days" validate:"min=0,max=365"`
	MaxCloudCover float64 `mapstructure:"max_cloud_cover" validate:"min=0,max=100"`
	Limit         int     `mapstructure:"limit" validate:"min=1,max=1000"`
}

// AggregatorConfig holds the processing job parameters
type AggregatorConfig struct {
	Collection      string        `mapstructure:"collection" validate:"required"`
	MaxCloudCover   float64       `mapstructure:"max_cloud_cover" validate:"min=0,max=100"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" validate:"min=0"`
}

// AnalysisConfig holds orchestration behavior
type AnalysisConfig struct {
	Workers        int  `mapstructure:"workers" validate:"min=1,max=32"`
	RetryFailed    bool `mapstructure:"retry_failed"`
	RetryNoImagery bool `mapstructure:"retry_no_imagery"`
}

// StorageConfig holds where sessions and exports are written
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir" validate:"required"`
}

// NotificationConfig holds Discord webhook configuration
type NotificationConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	DiscordErrorURL   string `mapstructure:"discord_error_url" validate:"omitempty,url"`
	DiscordSuccessURL string `mapstructure:"discord_success_url" validate:"omitempty,url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

var validate = newValidator()

// newValidator reports fields by their configuration key.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("mapstructure")
	})
	return v
}

// Load reads configuration from an optional YAML file and the environment.
// An empty path or a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	bindLegacyEnv(v)

	v.SetEnvPrefix("AGROSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("copernicus.token_url", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	v.SetDefault("copernicus.stac_url", "https://catalogue.dataspace.copernicus.eu/stac/search")
	v.SetDefault("copernicus.openeo_url", "https://openeo.dataspace.copernicus.eu/openeo/1.2")
	v.SetDefault("copernicus.oidc_provider", "CDSE")
	v.SetDefault("copernicus.client_id", "")
	v.SetDefault("copernicus.client_secret", "")
	v.SetDefault("copernicus.timeout", "5m")
	v.SetDefault("copernicus.token_early_expiry", "10m")

	v.SetDefault("resolver.collection", "SENTINEL-2")
	v.SetDefault("resolver.tolerance_days", 15)
	v.SetDefault("resolver.max_cloud_cover", 70)
	v.SetDefault("resolver.limit", 50)

	v.SetDefault("aggregator.collection", "SENTINEL2_L2A")
	v.SetDefault("aggregator.max_cloud_cover", 90)
	v.SetDefault("aggregator.breaker_failures", 3)
	v.SetDefault("aggregator.breaker_timeout", "1m")

	v.SetDefault("analysis.workers", 1)
	v.SetDefault("analysis.retry_failed", false)
	v.SetDefault("analysis.retry_no_imagery", false)

	v.SetDefault("storage.data_dir", filepath.Join(properties.RootPath(), "data"))

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.discord_error_url", "")
	v.SetDefault("notification.discord_success_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// bindLegacyEnv keeps the unprefixed variable names of the .env file working.
// The prefixed name wins when both are set.
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"copernicus.client_id":             "COPERNICUS_CLIENT_ID",
		"copernicus.client_secret":         "COPERNICUS_CLIENT_SECRET",
		"copernicus.token_url":             "COPERNICUS_TOKEN_URL",
		"notification.discord_error_url":   "DISCORD_ERROR_NOTIFICATION_URL",
		"notification.discord_success_url": "DISCORD_SUCCESS_NOTIFICATION_URL",
	}
	for key, env := range legacy {
		prefixed := "AGROSENSE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, env)
	}
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.Aggregator.BreakerFailures > 0 && c.Aggregator.BreakerTimeout <= 0 {
		return fmt.Errorf("aggregator.breaker_timeout must be positive when the breaker is enabled")
	}
	if c.Notification.Enabled && c.Notification.DiscordErrorURL == "" && c.Notification.DiscordSuccessURL == "" {
		return fmt.Errorf("notification requires at least one discord url when enabled")
	}

	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}
	return errors.New(strings.Join(messages, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid url", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
