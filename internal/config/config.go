package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	GeneralParams    GeneralParams
	HttpServerParams HttpServerParams
	MainDBParams     MainDBParams
	S3Params         S3Params
	BrokerParams     BrokerParams
	RedisParams      RedisParams
	RideParams       RideParams
}

type GeneralParams struct {
	Env       string
	SecretKey string
	LogLevel  string
}

type HttpServerParams struct {
	Address      string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	DBTimeout    time.Duration
}

type MainDBParams struct {
	Driver        string
	Username      string
	Password      string
	Name          string
	Port          int
	Host          string
	Timeout       int
	LockTimeoutMs int
	Migrate       bool
}

type S3Params struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

type BrokerParams struct {
	Kind     string
	URL      string
	Exchange string
	Brokers  []string
	Topic    string
}

type RedisParams struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Channel  string
}

type RideParams struct {
	MaxPassengers       int
	DefaultWindowDays   int
	NotificationWorkers int
	NotificationQueue   int
}

type ConfigManager struct {
	v      *viper.Viper
	config *Config
}

// NewConfigManager creates new config manager that handles
// all viper config options and loads a config from yaml.
// Command line flags (--config, --env, --http-port) win over the file.
func NewConfigManager(args []string) (*ConfigManager, error) {
	fs := pflag.NewFlagSet("ridepool", pflag.ContinueOnError)
	configPath := fs.String("config", DefaultPath, "path to the yaml config file")
	fs.String("env", "", "environment: dev, prod or test")
	fs.String("http-port", "", "http server port")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(*configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.BindPFlag("general_params.env", fs.Lookup("env")); err != nil {
		return nil, fmt.Errorf("failed to bind env flag: %w", err)
	}
	if err := v.BindPFlag("http_server_params.http_server_port", fs.Lookup("http-port")); err != nil {
		return nil, fmt.Errorf("failed to bind port flag: %w", err)
	}

	cm := &ConfigManager{v: v}
	cm.loadConfig()

	return cm, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general_params.env", "dev")
	v.SetDefault("http_server_params.http_server_address", "0.0.0.0")
	v.SetDefault("http_server_params.http_server_port", "8080")
	v.SetDefault("http_server_params.read_timeout", "15s")
	v.SetDefault("http_server_params.write_timeout", "15s")
	v.SetDefault("http_server_params.idle_timeout", "60s")
	v.SetDefault("http_server_params.db_timeout", "5s")
	v.SetDefault("main_db_params.db_driver", "postgres")
	v.SetDefault("main_db_params.db_port", 5432)
	v.SetDefault("main_db_params.db_timeout", 5)
	v.SetDefault("main_db_params.lock_timeout_ms", 3000)
	v.SetDefault("broker_params.kind", "none")
	v.SetDefault("broker_params.exchange", "ride_notifications")
	v.SetDefault("broker_params.topic", "ride-notifications")
	v.SetDefault("redis_params.channel", "ridepool:events")
	v.SetDefault("ride_params.max_passengers", 6)
	v.SetDefault("ride_params.default_window_days", 3)
	v.SetDefault("ride_params.notification_workers", 4)
	v.SetDefault("ride_params.notification_queue", 1024)
}

// Extracting data from yaml file and loading into Config
func (cm *ConfigManager) loadConfig() {
	cm.config = &Config{
		GeneralParams: GeneralParams{
			Env:       cm.v.GetString("general_params.env"),
			SecretKey: cm.v.GetString("general_params.secret_key"),
			LogLevel:  cm.v.GetString("general_params.log_level"),
		},
		HttpServerParams: HttpServerParams{
			Address:      cm.v.GetString("http_server_params.http_server_address"),
			Port:         cm.v.GetString("http_server_params.http_server_port"),
			ReadTimeout:  cm.v.GetDuration("http_server_params.read_timeout"),
			WriteTimeout: cm.v.GetDuration("http_server_params.write_timeout"),
			IdleTimeout:  cm.v.GetDuration("http_server_params.idle_timeout"),
			DBTimeout:    cm.v.GetDuration("http_server_params.db_timeout"),
		},
		MainDBParams: MainDBParams{
			Driver:        cm.v.GetString("main_db_params.db_driver"),
			Username:      cm.v.GetString("main_db_params.db_username"),
			Password:      cm.v.GetString("main_db_params.db_password"),
			Name:          cm.v.GetString("main_db_params.db_name"),
			Port:          cm.v.GetInt("main_db_params.db_port"),
			Host:          cm.v.GetString("main_db_params.db_host"),
			Timeout:       cm.v.GetInt("main_db_params.db_timeout"),
			LockTimeoutMs: cm.v.GetInt("main_db_params.lock_timeout_ms"),
			Migrate:       cm.v.GetBool("main_db_params.migrate"),
		},
		S3Params: S3Params{
			Enabled:         cm.v.GetBool("s3_params.enabled"),
			Endpoint:        cm.v.GetString("s3_params.endpoint"),
			AccessKeyID:     cm.v.GetString("s3_params.access_key_id"),
			SecretAccessKey: cm.v.GetString("s3_params.secret_access_key"),
			UseSSL:          cm.v.GetBool("s3_params.use_ssl"),
			BucketName:      cm.v.GetString("s3_params.bucket_name"),
		},
		BrokerParams: BrokerParams{
			Kind:     cm.v.GetString("broker_params.kind"),
			URL:      cm.v.GetString("broker_params.url"),
			Exchange: cm.v.GetString("broker_params.exchange"),
			Brokers:  cm.v.GetStringSlice("broker_params.brokers"),
			Topic:    cm.v.GetString("broker_params.topic"),
		},
		RedisParams: RedisParams{
			Enabled:  cm.v.GetBool("redis_params.enabled"),
			Addr:     cm.v.GetString("redis_params.addr"),
			Password: cm.v.GetString("redis_params.password"),
			DB:       cm.v.GetInt("redis_params.db"),
			Channel:  cm.v.GetString("redis_params.channel"),
		},
		RideParams: RideParams{
			MaxPassengers:       cm.v.GetInt("ride_params.max_passengers"),
			DefaultWindowDays:   cm.v.GetInt("ride_params.default_window_days"),
			NotificationWorkers: cm.v.GetInt("ride_params.notification_workers"),
			NotificationQueue:   cm.v.GetInt("ride_params.notification_queue"),
		},
	}
}

// Geting config instance
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Compiling a string to connect to main_db
func (db *MainDBParams) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=%d&sslmode=disable",
		db.Username,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
		db.Timeout,
	)
}

func (db *MainDBParams) LockTimeout() time.Duration {
	return time.Duration(db.LockTimeoutMs) * time.Millisecond
}

func (h *HttpServerParams) GetAddress() string {
	return fmt.Sprintf(
		"%s:%s",
		h.Address,
		h.Port,
	)
}

func (c *Config) Validate() error {
	// Checking secret key
	if c.GeneralParams.SecretKey == "" {
		return fmt.Errorf("parameter secret_key is required")
	}

	// Checking out enviroment variable
	switch c.GeneralParams.Env {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("env parameter is invalid: %s. try dev/prod/test instead", c.GeneralParams.Env)
	}

	// Checking http server parameters
	if c.HttpServerParams.Address == "" {
		return fmt.Errorf("http server address is required")
	}
	if c.HttpServerParams.Port == "" {
		return fmt.Errorf("http server port is required")
	}

	switch c.MainDBParams.Driver {
	case "memory":
	case "postgres":
		db := c.MainDBParams
		if db.Host == "" {
			return fmt.Errorf("MainDB: host is required")
		}
		if db.Username == "" {
			return fmt.Errorf("MainDB: username is required")
		}
		if db.Password == "" {
			return fmt.Errorf("MainDB: password is requred")
		}
		if db.Port <= 0 || db.Port > 65535 {
			return fmt.Errorf("MainDB: port is invalid")
		}
		if db.LockTimeoutMs <= 0 {
			return fmt.Errorf("MainDB: lock_timeout_ms must be positive")
		}
	default:
		return fmt.Errorf("MainDB: unknown driver %q (use postgres or memory)", c.MainDBParams.Driver)
	}

	// Checking S3 params
	if c.S3Params.Enabled {
		if c.S3Params.Endpoint == "" {
			return fmt.Errorf("S3 endpoint is required")
		}
		if c.S3Params.AccessKeyID == "" {
			return fmt.Errorf("S3 access_key id is required")
		}
		if c.S3Params.SecretAccessKey == "" {
			return fmt.Errorf("S3 secret_access_key is required")
		}
		if c.S3Params.BucketName == "" {
			return fmt.Errorf("S3 bucket name is required")
		}
	}

	switch c.BrokerParams.Kind {
	case "", "none":
	case "amqp":
		if c.BrokerParams.URL == "" {
			return fmt.Errorf("broker: amqp url is required")
		}
	case "kafka":
		if len(c.BrokerParams.Brokers) == 0 || c.BrokerParams.Topic == "" {
			return fmt.Errorf("broker: kafka brokers and topic are required")
		}
	default:
		return fmt.Errorf("broker: unknown kind %q (use none, amqp or kafka)", c.BrokerParams.Kind)
	}

	if c.RedisParams.Enabled && c.RedisParams.Addr == "" {
		return fmt.Errorf("redis: addr is required when enabled")
	}

	if c.RideParams.MaxPassengers < 1 {
		return fmt.Errorf("rides: max_passengers must be at least 1")
	}
	if c.RideParams.DefaultWindowDays < 0 {
		return fmt.Errorf("rides: default_window_days must not be negative")
	}
	if c.RideParams.NotificationWorkers < 1 || c.RideParams.NotificationQueue < 1 {
		return fmt.Errorf("rides: notification workers and queue must be positive")
	}

	return nil
}
