// README: Config loader with defaults for HTTP, DB, Redis, maps, notification and ride policy settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServiceAreaConfig struct {
	Lat     float64
	Lng     float64
	RadiusM float64
}

type NotifyConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type BookingConfig struct {
	// CancelWindow is how long before departure a passenger may still cancel.
	CancelWindow time.Duration
	SweepEvery   time.Duration
}

type LogConfig struct {
	Debug bool
	Path  string
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		DSN      string
		MaxConns int32
	}
	Redis struct {
		Addr string
	}
	Maps struct {
		APIKey  string
		Timeout time.Duration
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	RabbitMQ struct {
		URL      string
		Exchange string
	}
	Notify      NotifyConfig
	Booking     BookingConfig
	ServiceArea ServiceAreaConfig
	Currency    string
	TimeZone    string
	Log         LogConfig
}

// Load reads configuration from RIDEPOOL_* environment variables and, when
// RIDEPOOL_CONFIG points at a file, from that file first.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RIDEPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.DB.MaxConns = v.GetInt32("db.max_conns")
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Maps.APIKey = v.GetString("maps.api_key")
	cfg.Maps.Timeout = v.GetDuration("maps.timeout")
	cfg.Firebase.ProjectID = v.GetString("firebase.project_id")
	cfg.Firebase.CredentialsFile = v.GetString("firebase.credentials_file")
	cfg.RabbitMQ.URL = v.GetString("rabbitmq.url")
	cfg.RabbitMQ.Exchange = v.GetString("rabbitmq.exchange")
	cfg.Notify = NotifyConfig{
		Workers:   v.GetInt("notify.workers"),
		QueueSize: v.GetInt("notify.queue_size"),
		Timeout:   v.GetDuration("notify.timeout"),
	}
	cfg.Booking = BookingConfig{
		CancelWindow: v.GetDuration("booking.cancel_window"),
		SweepEvery:   v.GetDuration("booking.sweep_every"),
	}
	cfg.ServiceArea = ServiceAreaConfig{
		Lat:     v.GetFloat64("service_area.lat"),
		Lng:     v.GetFloat64("service_area.lng"),
		RadiusM: v.GetFloat64("service_area.radius_m"),
	}
	cfg.Currency = v.GetString("currency")
	cfg.TimeZone = v.GetString("timezone")
	cfg.Log = LogConfig{
		Debug: v.GetBool("log.debug"),
		Path:  v.GetString("log.path"),
	}

	if cfg.Maps.APIKey == "" {
		return cfg, fmt.Errorf("RIDEPOOL_MAPS_API_KEY is required")
	}
	if cfg.Notify.Workers <= 0 || cfg.Notify.QueueSize <= 0 {
		return cfg, fmt.Errorf("notify workers and queue size must be positive")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("redis.addr", "")
	v.SetDefault("maps.api_key", "")
	v.SetDefault("maps.timeout", 5*time.Second)
	v.SetDefault("firebase.project_id", "")
	v.SetDefault("firebase.credentials_file", "")
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "ridepool_events")
	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("booking.cancel_window", time.Hour)
	v.SetDefault("booking.sweep_every", 30*time.Second)
	// Bahrain, centred near Manama; covers the whole island.
	v.SetDefault("service_area.lat", 26.0667)
	v.SetDefault("service_area.lng", 50.5577)
	v.SetDefault("service_area.radius_m", 60000)
	v.SetDefault("currency", "BHD")
	v.SetDefault("timezone", "Asia/Bahrain")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.path", "")
}
