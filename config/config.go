package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"time"

	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/pkg/configparser"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	"github.com/Temutjin2k/location-relay/pkg/validator"
	"github.com/kr/pretty"
)

// Flags
var (
	portFlag = flag.String("port", "", "relay listen port (overrides RELAY_PORT)")
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains all configuration variables of the application
type (
	Config struct {
		Relay      RelayConfig
		Log        LogConfig
		Store      StoreConfig
		Database   DatabaseConfig
		Redis      RedisConfig
		RabbitMQ   RabbitMQConfig
		Simulation SimulationConfig
	}

	RelayConfig struct {
		Port                  string                `env:"RELAY_PORT" default:"8080"`
		DuplicateDriverPolicy types.DuplicatePolicy `env:"RELAY_DUPLICATE_DRIVER_POLICY" default:"replace-latest"`
		SendQueueSize         int                   `env:"RELAY_SEND_QUEUE_SIZE" default:"32"`
		PingInterval          time.Duration         `env:"RELAY_PING_INTERVAL" default:"30s"` // 0 disables heartbeats
		PongWait              time.Duration         `env:"RELAY_PONG_WAIT" default:"60s"`
		WriteWait             time.Duration         `env:"RELAY_WRITE_WAIT" default:"10s"`
		MaxMessageSize        int64                 `env:"RELAY_MAX_MESSAGE_SIZE" default:"8192"`
		SinkTimeout           time.Duration         `env:"RELAY_SINK_TIMEOUT" default:"2s"`
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"INFO"`
	}

	StoreConfig struct {
		Driver string `env:"STORE_DRIVER" default:"memory"` // memory | postgres | redis
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"relay_user"`
		Password string `env:"DATABASE_PASSWORD" default:"relay_pass"`
		Database string `env:"DATABASE_DATABASE" default:"relay_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"10"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"1"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RedisConfig struct {
		Addr      string        `env:"REDIS_ADDR" default:"localhost:6379"`
		Password  string        `env:"REDIS_PASSWORD"`
		DB        int           `env:"REDIS_DB" default:"0"`
		KeyPrefix string        `env:"REDIS_KEY_PREFIX" default:"relay:last_location:"`
		TTL       time.Duration `env:"REDIS_TTL" default:"24h"`
	}

	RabbitMQConfig struct {
		Enabled  bool   `env:"RABBITMQ_ENABLED" default:"false"`
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
		Exchange string `env:"RABBITMQ_EXCHANGE" default:"location_fanout"`
	}

	SimulationConfig struct {
		Enabled   bool          `env:"SIMULATION_ENABLED" default:"false"`
		Drivers   []string      `env:"SIMULATION_DRIVERS" default:"DRV001,DRV002"`
		Interval  time.Duration `env:"SIMULATION_INTERVAL" default:"2s"`
		Latitude  float64       `env:"SIMULATION_LATITUDE" default:"23.8103"`
		Longitude float64       `env:"SIMULATION_LONGITUDE" default:"90.4125"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c DatabaseConfig) PoolLimits() (int32, int32, time.Duration, time.Duration) {
	return c.MaxConns, c.MinConns, c.MaxConnLifetime, c.MaxConnIdleTime
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

// Addr returns the relay listen address.
func (c RelayConfig) Addr() string {
	return net.JoinHostPort("0.0.0.0", c.Port)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	parseFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFlags(cfg *Config) {
	if portFlag != nil && *portFlag != "" {
		cfg.Relay.Port = *portFlag
	}
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	v := validator.New()

	v.Check(c.Relay.Port != "", "relay.port", "must be provided")
	v.Check(c.Relay.DuplicateDriverPolicy.Valid(), "relay.duplicate_driver_policy", "must be replace-latest or reject-duplicate")
	v.Check(c.Relay.SendQueueSize > 0, "relay.send_queue_size", "must be positive")
	v.Check(c.Relay.MaxMessageSize > 0, "relay.max_message_size", "must be positive")
	v.Check(c.Relay.PingInterval == 0 || c.Relay.PongWait > c.Relay.PingInterval, "relay.pong_wait", "must be greater than ping_interval")
	v.Check(logger.ValidateLogLevel(c.Log.Level), "log.level", "must be one of DEBUG, INFO, WARN, ERROR")
	v.Check(validator.In(c.Store.Driver, StoreMemory, StorePostgres, StoreRedis), "store.driver", "must be memory, postgres or redis")
	if c.Simulation.Enabled {
		v.Check(len(c.Simulation.Drivers) > 0, "simulation.drivers", "must not be empty")
		v.Check(c.Simulation.Interval > 0, "simulation.interval", "must be positive")
	}

	if !v.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, v.Errors)
	}
	return nil
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// PrintConfig dumps the configuration with secrets masked.
func PrintConfig(cfg *Config) {
	masked := *cfg
	masked.Database.Password = mask(masked.Database.Password)
	masked.Redis.Password = mask(masked.Redis.Password)
	masked.RabbitMQ.Password = mask(masked.RabbitMQ.Password)

	fmt.Printf("%# v\n", pretty.Formatter(masked))
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
