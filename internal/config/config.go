package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bher20/carparkmanager/internal/alerting"
	"github.com/bher20/carparkmanager/internal/carparks"
	"github.com/bher20/carparkmanager/internal/cron"
	"github.com/bher20/carparkmanager/internal/notification"
)

// EnvPrefix is prepended to every environment variable, e.g. CARPARK_FEED_URL.
const EnvPrefix = "CARPARK"

const (
	DefaultAddress = ":8000"
	DefaultFeedURL = "https://dsat.apigateway.data.gov.mo/car_park_maintance"
)

type Config struct {
	Address string
	Feed    carparks.ClientConfig
	Refresh RefreshConfig
	Log     LogConfig
	Alert   alerting.AlertConfig
	Email   notification.EmailConfig
}

type RefreshConfig struct {
	Interval     string
	MaxAttempts  int
	RetryDelay   time.Duration
	WaitForFirst bool
}

type LogConfig struct {
	Level  string
	Format string
}

// NewViper returns a viper instance with every default registered and
// CARPARK_ environment variables bound.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("env_file", ".env")
	v.SetDefault("feed.url", DefaultFeedURL)
	v.SetDefault("feed.timeout", carparks.DefaultFetchTimeout)
	v.SetDefault("refresh.interval", cron.DefaultSchedule)
	v.SetDefault("refresh.max_attempts", cron.DefaultMaxAttempts)
	v.SetDefault("refresh.retry_delay", cron.DefaultRetryDelay)
	v.SetDefault("refresh.wait_for_first", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("alert.min_failures", 1)
	v.SetDefault("alert.timeout", 10*time.Second)
}

// Load reads the optional .env and config files into v and returns the
// resulting Config. It does not validate.
func Load(v *viper.Viper) (Config, error) {
	if envFile := v.GetString("env_file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	minFailures := v.GetInt("alert.min_failures")
	cfg := Config{
		Address: address(v),
		Feed: carparks.ClientConfig{
			URL:           strings.TrimSpace(v.GetString("feed.url")),
			Authorization: v.GetString("feed.authorization"),
			Timeout:       v.GetDuration("feed.timeout"),
		},
		Refresh: RefreshConfig{
			Interval:     v.GetString("refresh.interval"),
			MaxAttempts:  v.GetInt("refresh.max_attempts"),
			RetryDelay:   v.GetDuration("refresh.retry_delay"),
			WaitForFirst: v.GetBool("refresh.wait_for_first"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Alert: alerting.AlertConfig{
			WebhookURL:             v.GetString("alert.webhook_url"),
			WebhookType:            v.GetString("alert.webhook_type"),
			MinFailuresBeforeAlert: minFailures,
			Timeout:                v.GetDuration("alert.timeout"),
		},
		Email: notification.EmailConfig{
			APIKey:                 v.GetString("email.sendgrid_api_key"),
			FromAddress:            v.GetString("email.from_address"),
			FromName:               v.GetString("email.from_name"),
			To:                     splitList(v.GetStringSlice("email.to")),
			MinFailuresBeforeEmail: minFailures,
		},
	}
	return cfg, nil
}

// address prefers the configured address and falls back to the bare PORT
// variable used by most container platforms.
func address(v *viper.Viper) string {
	if addr := strings.TrimSpace(v.GetString("address")); addr != "" {
		return addr
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		return ":" + port
	}
	return DefaultAddress
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required"))
	}
	if strings.TrimSpace(c.Feed.Authorization) == "" {
		errs = append(errs, errors.New("feed.authorization is required"))
	}
	if c.Feed.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("feed.timeout must be positive, got %s", c.Feed.Timeout))
	}
	if c.Refresh.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("refresh.max_attempts must be at least 1, got %d", c.Refresh.MaxAttempts))
	}
	if c.Refresh.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("refresh.retry_delay must be positive, got %s", c.Refresh.RetryDelay))
	}
	if _, err := cron.ParseSchedule(c.Refresh.Interval); err != nil {
		errs = append(errs, fmt.Errorf("refresh.interval: %w", err))
	}
	if c.Alert.MinFailuresBeforeAlert < 1 {
		errs = append(errs, fmt.Errorf("alert.min_failures must be at least 1, got %d", c.Alert.MinFailuresBeforeAlert))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Scheduler maps the refresh settings onto the scheduler's config.
func (c Config) Scheduler() cron.Config {
	return cron.Config{
		Schedule:     c.Refresh.Interval,
		MaxAttempts:  c.Refresh.MaxAttempts,
		RetryDelay:   c.Refresh.RetryDelay,
		FetchTimeout: c.Feed.Timeout,
	}
}
