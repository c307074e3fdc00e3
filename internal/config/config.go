package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v9"
	"github.com/hookhub/relay/internal/redis"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	Namespace = "Relay"
)

func getConfigLocations() []string {
	return []string{
		// Relative paths
		".env",
		".relay.yaml",
		"config/relay.yaml",
		"config/relay/config.yaml",
		"config/relay/.env",

		// Container-friendly absolute paths
		"/config/relay.yaml",
		"/config/relay/config.yaml",
		"/config/relay/.env",
	}
}

type Flags struct {
	Config  string
	Service string
}

type Config struct {
	Service string `yaml:"service" env:"SERVICE"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	AuditLog bool   `yaml:"audit_log" env:"AUDIT_LOG"`

	OpenTelemetry    *OpenTelemetryConfig `yaml:"open_telemetry"`
	DisableTelemetry bool                 `yaml:"disable_telemetry" env:"DISABLE_TELEMETRY"`

	// API
	APIPort int    `yaml:"api_port" env:"API_PORT"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	GinMode string `yaml:"gin_mode" env:"GIN_MODE"`

	// Infrastructure
	Redis       *RedisConfig `yaml:"redis"`
	PostgresURL string       `yaml:"postgres_url" env:"POSTGRES_URL"`
	Queue       *QueueConfig `yaml:"queue"`

	// Dispatch
	DeliveryMaxConcurrency int `yaml:"delivery_max_concurrency" env:"DELIVERY_MAX_CONCURRENCY"`
	DispatchPollIntervalMS int `yaml:"dispatch_poll_interval_ms" env:"DISPATCH_POLL_INTERVAL_MS"`

	// Delivery
	DeliveryTimeoutSeconds        int    `yaml:"delivery_timeout_seconds" env:"DELIVERY_TIMEOUT_SECONDS"`
	DeliveryConnectTimeoutSeconds int    `yaml:"delivery_connect_timeout_seconds" env:"DELIVERY_CONNECT_TIMEOUT_SECONDS"`
	HTTPUserAgent                 string `yaml:"http_user_agent" env:"HTTP_USER_AGENT"`

	// Retry
	RetrySchedule    []int `yaml:"retry_schedule" env:"RETRY_SCHEDULE" envSeparator:","`
	RetryMaxAttempts int   `yaml:"retry_max_attempts" env:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelayMS int   `yaml:"retry_base_delay_ms" env:"RETRY_BASE_DELAY_MS"`
	RetryMaxDelayMS  int   `yaml:"retry_max_delay_ms" env:"RETRY_MAX_DELAY_MS"`

	// Circuit breaker
	CircuitFailureThreshold  int `yaml:"circuit_failure_threshold" env:"CIRCUIT_FAILURE_THRESHOLD"`
	CircuitCooldownSeconds   int `yaml:"circuit_cooldown_seconds" env:"CIRCUIT_COOLDOWN_SECONDS"`
	CircuitHalfOpenMaxProbes int `yaml:"circuit_half_open_max_probes" env:"CIRCUIT_HALF_OPEN_MAX_PROBES"`

	// Webhook pausing
	WebhookPauseSeconds int `yaml:"webhook_pause_seconds" env:"WEBHOOK_PAUSE_SECONDS"`

	// Classification
	ClassificationRulesPath string        `yaml:"classification_rules_path" env:"CLASSIFICATION_RULES_PATH"`
	Advisor                 AdvisorConfig `yaml:"advisor"`

	// Alerts
	Alert AlertConfig `yaml:"alert"`

	// Startup recovery
	RecoveryEnabled bool `yaml:"recovery_enabled" env:"RECOVERY_ENABLED"`

	// ID generation
	IDTemplates IDTemplateConfig `yaml:"id_templates"`

	configPath string
	validated  bool
}

var (
	ErrMismatchedServiceType = errors.New("service type mismatch")
	ErrInvalidServiceType    = errors.New("invalid service type")
	ErrMissingRedis          = errors.New("redis configuration required")
	ErrMissingQueue          = errors.New("queue configuration required")
	ErrInvalidRetryConfig    = errors.New("invalid retry configuration")
	ErrInvalidCircuitConfig  = errors.New("invalid circuit breaker configuration")
	ErrInvalidAdvisorConfig  = errors.New("invalid advisor configuration")
)

func (c *Config) initDefaults() {
	c.LogLevel = "info"
	c.APIPort = 8080
	c.GinMode = "release"
	c.Redis = &RedisConfig{
		Host: "127.0.0.1",
		Port: 6379,
	}
	c.Queue = &QueueConfig{
		Driver: "memory",
		RabbitMQ: &RabbitMQConfig{
			Exchange: "relay",
			Queue:    "relay-delivery",
		},
	}
	c.DeliveryMaxConcurrency = 5
	c.DispatchPollIntervalMS = 100
	c.DeliveryTimeoutSeconds = 10
	c.DeliveryConnectTimeoutSeconds = 5
	c.HTTPUserAgent = "HookHub-Relay/1.0"
	c.RetrySchedule = []int{}
	c.RetryMaxAttempts = 5
	c.RetryBaseDelayMS = 1000
	c.RetryMaxDelayMS = 60000
	c.CircuitFailureThreshold = 5
	c.CircuitCooldownSeconds = 60
	c.CircuitHalfOpenMaxProbes = 3
	c.WebhookPauseSeconds = 3600
	c.Advisor = AdvisorConfig{
		Enabled:         true,
		FallbackEnabled: true,
		TimeoutSeconds:  5,
		MinConfidence:   0.6,
	}
	c.Alert = AlertConfig{
		DebounceIntervalMS: 60000,
	}
	c.RecoveryEnabled = true
}

func (c *Config) parseConfigFile(flagPath string, osInterface OSInterface) error {
	// Get config file path from flag or env
	configPath := flagPath
	if envPath := osInterface.Getenv("CONFIG"); envPath != "" {
		if configPath != "" && configPath != envPath {
			return fmt.Errorf("conflicting config paths: flag=%s env=%s", configPath, envPath)
		}
		configPath = envPath
	}

	// If no explicit config path, try default locations
	if configPath == "" {
		for _, loc := range getConfigLocations() {
			if _, err := osInterface.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if configPath == "" {
		return nil
	}

	data, err := osInterface.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	c.configPath = configPath

	// Parse based on file extension
	if strings.HasSuffix(strings.ToLower(configPath), ".env") {
		envMap, err := godotenv.UnmarshalBytes(data)
		if err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		if err := env.ParseWithOptions(c, env.Options{
			Environment: envMap,
		}); err != nil {
			return fmt.Errorf("error parsing .env file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error parsing yaml config: %w", err)
		}
	}
	return nil
}

func (c *Config) parseEnvVariables(osInterface OSInterface) error {
	if err := env.ParseWithOptions(c, env.Options{
		Environment: environToMap(osInterface.Environ()),
	}); err != nil {
		return fmt.Errorf("error parsing environment variables: %w", err)
	}
	return nil
}

func environToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if idx := strings.Index(kv, "="); idx > 0 {
			m[kv[:idx]] = kv[idx+1:]
		}
	}
	return m
}

func Parse(flags Flags) (*Config, error) {
	return ParseWithOS(flags, defaultOS)
}

func ParseWithOS(flags Flags, osInterface OSInterface) (*Config, error) {
	var config Config

	// Initialize defaults
	config.initDefaults()

	// Parse config file
	if err := config.parseConfigFile(flags.Config, osInterface); err != nil {
		return nil, err
	}

	// Parse environment variables (highest priority)
	if err := config.parseEnvVariables(osInterface); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.Validate(flags); err != nil {
		return nil, err
	}

	return &config, nil
}

type RedisConfig struct {
	Host       string `yaml:"host" env:"REDIS_HOST"`
	Port       int    `yaml:"port" env:"REDIS_PORT"`
	Username   string `yaml:"username" env:"REDIS_USERNAME"`
	Password   string `yaml:"password" env:"REDIS_PASSWORD"`
	Database   int    `yaml:"database" env:"REDIS_DATABASE"`
	TLSEnabled bool   `yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`
}

func (c *RedisConfig) ToConfig() *redis.RedisConfig {
	return &redis.RedisConfig{
		Host:       c.Host,
		Port:       c.Port,
		Username:   c.Username,
		Password:   c.Password,
		Database:   c.Database,
		TLSEnabled: c.TLSEnabled,
	}
}

type QueueConfig struct {
	Driver   string          `yaml:"driver" env:"QUEUE_DRIVER"`
	RabbitMQ *RabbitMQConfig `yaml:"rabbitmq"`
}

type RabbitMQConfig struct {
	ServerURL string `yaml:"server_url" env:"RABBITMQ_SERVER_URL"`
	Exchange  string `yaml:"exchange" env:"RABBITMQ_EXCHANGE"`
	Queue     string `yaml:"queue" env:"RABBITMQ_QUEUE"`
}

type AdvisorConfig struct {
	URL     string `yaml:"url" env:"ADVISOR_URL"`
	Enabled bool   `yaml:"enabled" env:"ADVISOR_ENABLED"`
	// FallbackEnabled lets the rule engine back up an unavailable or
	// low-confidence advisor; when false, such failures default to RETRY.
	FallbackEnabled bool    `yaml:"fallback_enabled" env:"ADVISOR_FALLBACK_ENABLED"`
	TimeoutSeconds  int     `yaml:"timeout_seconds" env:"ADVISOR_TIMEOUT_SECONDS"`
	MinConfidence   float64 `yaml:"min_confidence" env:"ADVISOR_MIN_CONFIDENCE"`
}

type AlertConfig struct {
	// CallbackURL receives escalation alerts via HTTP POST when set.
	CallbackURL string `yaml:"callback_url" env:"ALERT_CALLBACK_URL"`
	// TopicURL publishes escalation alerts to a pubsub topic when set,
	// e.g. "mem://alerts" or "rabbit://alerts".
	TopicURL           string `yaml:"topic_url" env:"ALERT_TOPIC_URL"`
	DebounceIntervalMS int    `yaml:"debounce_interval_ms" env:"ALERT_DEBOUNCE_INTERVAL_MS"`
}

// IDTemplateConfig is the configuration for ID generation templates
type IDTemplateConfig struct {
	Event          string `yaml:"event" env:"ID_TEMPLATE_EVENT" desc:"Go template for generating event IDs. Available functions: uuidv4, uuidv7, nanoid. Default: '{{uuidv4}}'" required:"N"`
	Webhook        string `yaml:"webhook" env:"ID_TEMPLATE_WEBHOOK" desc:"Go template for generating webhook IDs. Available functions: uuidv4, uuidv7, nanoid. Default: '{{uuidv4}}'" required:"N"`
	Classification string `yaml:"classification" env:"ID_TEMPLATE_CLASSIFICATION" desc:"Go template for generating classification record IDs. Default: '{{uuidv7}}'" required:"N"`
}
