package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"

	LockBackendMemory   = "memory"
	LockBackendRedis    = "redis"
	LockBackendFailover = "failover"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Reviews    ReviewsConfig    `yaml:"reviews"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Mongo  MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI                string        `yaml:"uri"`
	Database           string        `yaml:"database"`
	RoomsCollection    string        `yaml:"rooms_collection"`
	BookingsCollection string        `yaml:"bookings_collection"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	OperationTimeout   time.Duration `yaml:"operation_timeout"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AuthConfig describes how bearer tokens on protected routes are verified.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Algorithm string `yaml:"algorithm"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

type ReviewsConfig struct {
	SerializePerRoom bool          `yaml:"serialize_per_room"`
	LockBackend      string        `yaml:"lock_backend"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
}

type TelegramConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BotToken       string  `yaml:"bot_token"`
	ManagerChatIDs []int64 `yaml:"manager_chat_ids"`
	Debug          bool    `yaml:"debug"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type GoogleConfig struct {
	Enabled             bool   `yaml:"enabled"`
	CredentialsFile     string `yaml:"credentials_file"`
	LedgerSpreadsheetID string `yaml:"ledger_spreadsheet_id"`
	LedgerSheet         string `yaml:"ledger_sheet"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return errors.New("mongo uri is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is required")
	}

	switch c.Reviews.LockBackend {
	case LockBackendMemory, LockBackendRedis, LockBackendFailover:
	default:
		return fmt.Errorf("unknown review lock backend %q", c.Reviews.LockBackend)
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka brokers and topic are required when kafka is enabled")
	}
	if c.Google.Enabled && (c.Google.CredentialsFile == "" || c.Google.LedgerSpreadsheetID == "") {
		return errors.New("google credentials and ledger spreadsheet are required when google is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "hotelhub"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMongo
	}
	if c.Database.Mongo.Database == "" {
		c.Database.Mongo.Database = "HotelHub"
	}
	if c.Database.Mongo.RoomsCollection == "" {
		c.Database.Mongo.RoomsCollection = "rooms"
	}
	if c.Database.Mongo.BookingsCollection == "" {
		c.Database.Mongo.BookingsCollection = "BookedRoom"
	}
	if c.Database.Mongo.ConnectTimeout == 0 {
		c.Database.Mongo.ConnectTimeout = 10 * time.Second
	}
	if c.Database.Mongo.OperationTimeout == 0 {
		c.Database.Mongo.OperationTimeout = 5 * time.Second
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 5000
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Auth.Algorithm == "" {
		c.Auth.Algorithm = "HS256"
	}
	if c.Reviews.LockBackend == "" {
		c.Reviews.LockBackend = LockBackendMemory
	}
	if c.Reviews.LockTTL == 0 {
		c.Reviews.LockTTL = 10 * time.Second
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "hotelhub.events"
	}
	if c.Google.LedgerSheet == "" {
		c.Google.LedgerSheet = "Ledger"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
}
