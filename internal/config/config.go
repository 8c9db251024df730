// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const PathEnvVar = "CONFIG_PATH"

var defaultPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Auth      AuthConfig      `koanf:"auth"`
	Email     EmailConfig     `koanf:"email"`
	Uploads   UploadsConfig   `koanf:"uploads"`
	Orders    OrdersConfig    `koanf:"orders"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port         string        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrations_path"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"group_id"`
}

type AuthConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"`
	TokenTTL         time.Duration `koanf:"token_ttl"`
	VerificationTTL  time.Duration `koanf:"verification_ttl"`
	PasswordResetTTL time.Duration `koanf:"password_reset_ttl"`
	PendingTTL       time.Duration `koanf:"pending_ttl"`
	PurgeSchedule    string        `koanf:"purge_schedule"`
}

type EmailConfig struct {
	ServiceURL     string `koanf:"service_url"`
	From           string `koanf:"from"`
	SupportAddress string `koanf:"support_address"`
	AppBaseURL     string `koanf:"app_base_url"`
	APIBaseURL     string `koanf:"api_base_url"`
}

type UploadsConfig struct {
	Dir           string `koanf:"dir"`
	MaxImageBytes int64  `koanf:"max_image_bytes"`
}

type OrdersConfig struct {
	CancelWindow time.Duration `koanf:"cancel_window"`
}

type GatewayConfig struct {
	APIURL         string        `koanf:"api_url"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RateLimit      int           `koanf:"rate_limit"`
	RateWindow     time.Duration `koanf:"rate_window"`
}

type TelemetryConfig struct {
	Enabled        bool   `koanf:"enabled"`
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
	ServiceVersion string `koanf:"service_version"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:   "seller.notifications",
			GroupID: "seller-notifier",
		},
		Auth: AuthConfig{
			TokenTTL:         10 * 24 * time.Hour,
			VerificationTTL:  24 * time.Hour,
			PasswordResetTTL: time.Hour,
			PendingTTL:       24 * time.Hour,
			PurgeSchedule:    "@hourly",
		},
		Email: EmailConfig{
			From:           "no-reply@goodfood.local",
			SupportAddress: "support@goodfood.local",
			AppBaseURL:     "http://localhost:3000",
			APIBaseURL:     "http://localhost:8080",
		},
		Uploads: UploadsConfig{
			Dir:           "uploads",
			MaxImageBytes: 5 << 20,
		},
		Orders: OrdersConfig{
			CancelWindow: time.Minute,
		},
		Gateway: GatewayConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			RateLimit:      300,
			RateWindow:     time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			OTLPEndpoint:   "localhost:4317",
			ServiceVersion: "0.1.0",
		},
	}
}

// envKeys maps the environment variables the services have always read onto
// config paths. Unlisted variables are ignored.
var envKeys = map[string]string{
	"PORT":                        "server.port",
	"POSTGRES_URL":                "database.url",
	"MIGRATIONS_PATH":             "database.migrations_path",
	"KAFKA_BROKERS":               "kafka.brokers",
	"KAFKA_TOPIC":                 "kafka.topic",
	"KAFKA_GROUP_ID":              "kafka.group_id",
	"JWT_SECRET":                  "auth.jwt_secret",
	"TOKEN_TTL":                   "auth.token_ttl",
	"PENDING_PURGE_SCHEDULE":      "auth.purge_schedule",
	"EMAIL_SERVICE_URL":           "email.service_url",
	"EMAIL_FROM":                  "email.from",
	"SUPPORT_EMAIL":               "email.support_address",
	"APP_BASE_URL":                "email.app_base_url",
	"API_BASE_URL":                "email.api_base_url",
	"UPLOADS_DIR":                 "uploads.dir",
	"UPLOADS_MAX_IMAGE_BYTES":     "uploads.max_image_bytes",
	"ORDER_CANCEL_WINDOW":         "orders.cancel_window",
	"API_URL":                     "gateway.api_url",
	"CORS_ALLOWED_ORIGINS":        "gateway.allowed_origins",
	"GATEWAY_RATE_LIMIT":          "gateway.rate_limit",
	"OTEL_ENABLED":                "telemetry.enabled",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "telemetry.otlp_endpoint",
	"SERVICE_VERSION":             "telemetry.service_version",
}

var sliceKeys = []string{"kafka.brokers", "gateway.allowed_origins"}

// Load builds the configuration. Environment wins over the file, the file wins
// over defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", transformEnv), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSlices(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func transformEnv(key string) string {
	// koanf drops keys mapped to "".
	return envKeys[key]
}

func findFile() string {
	if path := os.Getenv(PathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func splitSlices(k *koanf.Koanf) error {
	for _, path := range sliceKeys {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// Require fails on the first empty value, naming it by its environment variable.
// Pairs are (name, value).
func Require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}
