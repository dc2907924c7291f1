package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Log        LogConfig        `mapstructure:"log"`
	Player     PlayerConfig     `mapstructure:"player"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type NATSConfig struct {
	URL      string `mapstructure:"url"`
	DeviceID string `mapstructure:"device_id"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Progress store backends.
const (
	BackendSQLite   = "sqlite"
	BackendValkey   = "valkey"
	BackendPostgres = "postgres"
)

// Location sources.
const (
	SourceSimulated = "simulated"
	SourceNATS      = "nats"
)

type PlayerConfig struct {
	TourID           string        `mapstructure:"tour_id"`
	ToursDir         string        `mapstructure:"tours_dir"`
	ProgressBackend  string        `mapstructure:"progress_backend"`
	LocationSource   string        `mapstructure:"location_source"`
	SampleInterval   time.Duration `mapstructure:"sample_interval"`
	DistanceInterval float64       `mapstructure:"distance_interval"`
	LoadTimeout      time.Duration `mapstructure:"load_timeout"`
	SaveTimeout      time.Duration `mapstructure:"save_timeout"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout"`
}

type SimulationConfig struct {
	RouteFile  string        `mapstructure:"route_file"`
	StepMeters float64       `mapstructure:"step_meters"`
	Tick       time.Duration `mapstructure:"tick"`
	ClipLength time.Duration `mapstructure:"clip_length"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "audiotour")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "audiotour")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("sqlite.path", "./data/progress.db")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.device_id", "default")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "progress-sync")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("player.tours_dir", "./tours")
	v.SetDefault("player.progress_backend", BackendSQLite)
	v.SetDefault("player.location_source", SourceSimulated)
	v.SetDefault("player.sample_interval", 2*time.Second)
	v.SetDefault("player.distance_interval", 5.0)
	v.SetDefault("player.load_timeout", 30*time.Second)
	v.SetDefault("player.save_timeout", 5*time.Second)
	v.SetDefault("player.close_timeout", 10*time.Second)
	v.SetDefault("simulation.step_meters", 5.0)
	v.SetDefault("simulation.tick", 2*time.Second)
	v.SetDefault("simulation.clip_length", 90*time.Second)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: AUDIOTOUR_PLAYER_TOUR_ID → player.tour_id
	v.SetEnvPrefix("AUDIOTOUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	_ = v.BindEnv("player.tour_id")
	_ = v.BindEnv("simulation.route_file")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	switch c.Player.ProgressBackend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite.path is required for the sqlite progress backend")
		}
	case BackendValkey, BackendPostgres:
	default:
		errs = append(errs, fmt.Sprintf("player.progress_backend must be sqlite, valkey or postgres, got %q", c.Player.ProgressBackend))
	}
	switch c.Player.LocationSource {
	case SourceSimulated, SourceNATS:
	default:
		errs = append(errs, fmt.Sprintf("player.location_source must be simulated or nats, got %q", c.Player.LocationSource))
	}
	if c.Player.SampleInterval <= 0 {
		errs = append(errs, "player.sample_interval must be positive")
	}
	if c.Player.DistanceInterval < 0 {
		errs = append(errs, "player.distance_interval must not be negative")
	}
	if c.Player.LoadTimeout <= 0 {
		errs = append(errs, "player.load_timeout must be positive")
	}
	if c.Player.SaveTimeout <= 0 {
		errs = append(errs, "player.save_timeout must be positive")
	}
	if c.Player.CloseTimeout <= 0 {
		errs = append(errs, "player.close_timeout must be positive")
	}
	if c.Simulation.StepMeters <= 0 {
		errs = append(errs, "simulation.step_meters must be positive")
	}
	if c.Simulation.Tick <= 0 {
		errs = append(errs, "simulation.tick must be positive")
	}
	if c.Simulation.ClipLength <= 0 {
		errs = append(errs, "simulation.clip_length must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
