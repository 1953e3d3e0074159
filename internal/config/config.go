package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	instance *Config
	once     sync.Once
)

// Config - loaded once from config.yaml, environment overrides applied on top
type Config struct {
	Telemetry struct {
		Endpoint           string        `yaml:"endpoint"`
		PollInterval       time.Duration `yaml:"poll_interval"`
		FetchTimeout       time.Duration `yaml:"fetch_timeout"`
		BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
		BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
	} `yaml:"telemetry"`
	Forecast struct {
		HorizonsMinutes     []int `yaml:"horizons_minutes"`
		AlertHorizonMinutes int   `yaml:"alert_horizon_minutes"`
		MinSamples          int   `yaml:"min_samples"`
	} `yaml:"forecast"`
	Alert struct {
		ThresholdPPM    int           `yaml:"threshold_ppm"`
		NotifyURL       string        `yaml:"notify_url"`
		DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	} `yaml:"alert"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	AlertLog struct {
		Enabled bool   `yaml:"enabled"`
		DSN     string `yaml:"dsn"`
	} `yaml:"alert_log"`
	Notifier struct {
		Addr           string `yaml:"addr"`
		Title          string `yaml:"title"`
		Body           string `yaml:"body"`
		VAPIDPublicKey string `yaml:"vapid_public_key"`
	} `yaml:"notifier"`
	Redis struct {
		Addr             string `yaml:"addr"`
		Password         string `yaml:"password"`
		DB               int    `yaml:"db"`
		SubscriptionsKey string `yaml:"subscriptions_key"`
		Stream           string `yaml:"stream"`
	} `yaml:"redis"`
}

func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = Default()

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		}

		if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
			err = fmt.Errorf("failed to parse config: %w", parseErr)
			return
		}

		if envErr := instance.applyEnv(); envErr != nil {
			err = envErr
			return
		}

		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

// Default returns a config with every field at its default value
func Default() *Config {
	c := &Config{}
	c.Telemetry.PollInterval = 5 * time.Second
	c.Telemetry.FetchTimeout = 4 * time.Second
	c.Telemetry.BreakerMaxFailures = 5
	c.Telemetry.BreakerOpenTimeout = 30 * time.Second
	c.Forecast.HorizonsMinutes = []int{5, 10, 15}
	c.Forecast.AlertHorizonMinutes = 15
	c.Forecast.MinSamples = 5
	c.Alert.ThresholdPPM = 1500
	c.Alert.NotifyURL = "http://localhost:3000/sendNotification"
	c.Alert.DispatchTimeout = 10 * time.Second
	c.Server.Addr = ":8080"
	c.Notifier.Addr = ":3000"
	c.Notifier.Title = "In-vehicle environment monitor"
	c.Notifier.Body = "CO2 is forecast to exceed the threshold. Ventilate within 5 minutes. If this change looks suspicious, a warning buzzer can be sent to the device."
	c.Redis.Addr = "localhost:6379"
	c.Redis.SubscriptionsKey = "cabinair:subscriptions"
	c.Redis.Stream = "cabinair:push_deliveries"
	return c
}

// applyEnv overrides selected settings from the environment
func (c *Config) applyEnv() error {
	c.Telemetry.Endpoint = getEnv("TELEMETRY_ENDPOINT", c.Telemetry.Endpoint)
	c.Alert.NotifyURL = getEnv("NOTIFY_URL", c.Alert.NotifyURL)
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Notifier.Addr = getEnv("NOTIFIER_ADDR", c.Notifier.Addr)
	c.Notifier.VAPIDPublicKey = getEnv("VAPID_PUBLIC_KEY", c.Notifier.VAPIDPublicKey)

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		c.Telemetry.PollInterval = d
	}

	if v := os.Getenv("CO2_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CO2_THRESHOLD: %w", err)
		}
		c.Alert.ThresholdPPM = n
	}

	return nil
}

func (c *Config) validate() error {
	if c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint cannot be empty")
	}
	if c.Telemetry.PollInterval <= 0 {
		return fmt.Errorf("telemetry.poll_interval must be positive")
	}
	if c.Telemetry.FetchTimeout <= 0 {
		return fmt.Errorf("telemetry.fetch_timeout must be positive")
	}
	if len(c.Forecast.HorizonsMinutes) == 0 {
		return fmt.Errorf("forecast.horizons_minutes cannot be empty")
	}

	found := false
	for _, h := range c.Forecast.HorizonsMinutes {
		if h <= 0 {
			return fmt.Errorf("forecast.horizons_minutes must be positive, got %d", h)
		}
		if h == c.Forecast.AlertHorizonMinutes {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("forecast.alert_horizon_minutes %d is not one of horizons_minutes", c.Forecast.AlertHorizonMinutes)
	}

	if c.Forecast.MinSamples < 2 {
		return fmt.Errorf("forecast.min_samples must be at least 2")
	}
	if c.Alert.ThresholdPPM <= 0 {
		return fmt.Errorf("alert.threshold_ppm must be positive")
	}
	return nil
}
