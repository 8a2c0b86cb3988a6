// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Worker, Dispatch, Inference,
// Reporting, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Service   string          `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Worker    WorkerConfig    `yaml:"worker"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Inference InferenceConfig `yaml:"inference"`
	Reporting ReportingConfig `yaml:"reporting"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	HealthPort      int           `yaml:"healthPort"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
}

// PostgresConfig holds connection parameters for the health-check store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds broker and queue settings.
type KafkaConfig struct {
	Brokers           []string      `yaml:"brokers"`
	ConsumerGroup     string        `yaml:"consumerGroup"`
	Partitions        int           `yaml:"partitions"`
	ReplicationFactor int           `yaml:"replicationFactor"`
	DialTimeout       time.Duration `yaml:"dialTimeout"`
	Topics            KafkaTopics   `yaml:"topics"`
}

// KafkaTopics maps logical queue names to their Kafka topic strings.
type KafkaTopics struct {
	FaceMatch       string `yaml:"faceMatch"`
	FaceMatchResult string `yaml:"faceMatchResult"`
	Liveness        string `yaml:"liveness"`
	LivenessResult  string `yaml:"livenessResult"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// job dedupe guard.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"poolSize"`
	ProcessedTTL time.Duration `yaml:"processedTTL"`
}

// WorkerConfig controls the consumption loop of every worker.
type WorkerConfig struct {
	Prefetch         int           `yaml:"prefetch"`
	ReconnectBackoff time.Duration `yaml:"reconnectBackoff"`
	StopTimeout      time.Duration `yaml:"stopTimeout"`
	AckTimeout       time.Duration `yaml:"ackTimeout"`
}

// DispatchConfig controls job creation at the ingestion boundary.
type DispatchConfig struct {
	DefaultFaceThreshold float64       `yaml:"defaultFaceThreshold"`
	PublishAttempts      int           `yaml:"publishAttempts"`
	PublishRetryDelay    time.Duration `yaml:"publishRetryDelay"`
}

// InferenceConfig points at the model-serving sidecars behind the capability
// ports.
type InferenceConfig struct {
	EmbedderAddr     string        `yaml:"embedderAddr"`
	DetectorAddr     string        `yaml:"detectorAddr"`
	OCRAddr          string        `yaml:"ocrAddr"`
	OCRLanguages     []string      `yaml:"ocrLanguages"`
	OCRMinConfidence float64       `yaml:"ocrMinConfidence"`
	DialTimeout      time.Duration `yaml:"dialTimeout"`
}

// ReportingConfig holds the case-management and media-store endpoints.
type ReportingConfig struct {
	BackofficeURL    string        `yaml:"backofficeUrl"`
	MediaURL         string        `yaml:"mediaUrl"`
	Timeout          time.Duration `yaml:"timeout"`
	UploadTimeout    time.Duration `yaml:"uploadTimeout"`
	VideoFPS         int           `yaml:"videoFps"`
	VideoQuality     int           `yaml:"videoQuality"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the workers cannot run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	if c.Kafka.ConsumerGroup == "" {
		return fmt.Errorf("kafka.consumerGroup must not be empty")
	}
	t := c.Kafka.Topics
	if t.FaceMatch == "" || t.FaceMatchResult == "" || t.Liveness == "" || t.LivenessResult == "" {
		return fmt.Errorf("kafka.topics must name all four queues")
	}
	if c.Dispatch.DefaultFaceThreshold < 0 || c.Dispatch.DefaultFaceThreshold > 1 {
		return fmt.Errorf("dispatch.defaultFaceThreshold must be within [0,1], got %v", c.Dispatch.DefaultFaceThreshold)
	}
	if c.Worker.Prefetch != 1 {
		return fmt.Errorf("worker.prefetch must be 1, got %d", c.Worker.Prefetch)
	}
	if len(c.Inference.OCRLanguages) == 0 {
		return fmt.Errorf("inference.ocrLanguages must not be empty")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Service: "ekyc-ai-support",
		Server: ServerConfig{
			Port:            8082,
			HealthPort:      8083,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    64 << 20,
		},
		Postgres: PostgresConfig{
			Enabled:         true,
			Host:            "localhost",
			Port:            5432,
			Database:        "ai_support",
			User:            "postgres",
			Password:        "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:           []string{"localhost:9092"},
			ConsumerGroup:     "ekyc-ai-support",
			Partitions:        1,
			ReplicationFactor: 1,
			DialTimeout:       10 * time.Second,
			Topics: KafkaTopics{
				FaceMatch:       "ekyc.face_match",
				FaceMatchResult: "ekyc.face_match.result",
				Liveness:        "ekyc.liveness",
				LivenessResult:  "ekyc.liveness.result",
			},
		},
		Redis: RedisConfig{
			Addr:         "",
			PoolSize:     10,
			ProcessedTTL: 24 * time.Hour,
		},
		Worker: WorkerConfig{
			Prefetch:         1,
			ReconnectBackoff: time.Second,
			StopTimeout:      5 * time.Second,
			AckTimeout:       5 * time.Second,
		},
		Dispatch: DispatchConfig{
			DefaultFaceThreshold: 0.8,
			PublishAttempts:      3,
			PublishRetryDelay:    200 * time.Millisecond,
		},
		Inference: InferenceConfig{
			EmbedderAddr:     "localhost:50061",
			DetectorAddr:     "localhost:50062",
			OCRAddr:          "localhost:50063",
			OCRLanguages:     []string{"id", "en"},
			OCRMinConfidence: 0.35,
			DialTimeout:      5 * time.Second,
		},
		Reporting: ReportingConfig{
			BackofficeURL:    "http://localhost:8090",
			MediaURL:         "http://localhost:8091",
			Timeout:          5 * time.Second,
			UploadTimeout:    10 * time.Second,
			VideoFPS:         8,
			VideoQuality:     85,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads EKYC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EKYC_SERVICE_NAME"); v != "" {
		cfg.Service = v
	}
	if v := os.Getenv("EKYC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EKYC_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.HealthPort = port
		}
	}
	if v := os.Getenv("EKYC_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = v == "true"
	}
	if v := os.Getenv("EKYC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("EKYC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("EKYC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("EKYC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("EKYC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("EKYC_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("EKYC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("EKYC_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("EKYC_FACE_MATCH_QUEUE"); v != "" {
		cfg.Kafka.Topics.FaceMatch = v
	}
	if v := os.Getenv("EKYC_FACE_MATCH_RESULT_QUEUE"); v != "" {
		cfg.Kafka.Topics.FaceMatchResult = v
	}
	if v := os.Getenv("EKYC_LIVENESS_QUEUE"); v != "" {
		cfg.Kafka.Topics.Liveness = v
	}
	if v := os.Getenv("EKYC_LIVENESS_RESULT_QUEUE"); v != "" {
		cfg.Kafka.Topics.LivenessResult = v
	}
	if v := os.Getenv("EKYC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("EKYC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("EKYC_DEFAULT_FACE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dispatch.DefaultFaceThreshold = f
		}
	}
	if v := os.Getenv("EKYC_EMBEDDER_ADDR"); v != "" {
		cfg.Inference.EmbedderAddr = v
	}
	if v := os.Getenv("EKYC_DETECTOR_ADDR"); v != "" {
		cfg.Inference.DetectorAddr = v
	}
	if v := os.Getenv("EKYC_OCR_ADDR"); v != "" {
		cfg.Inference.OCRAddr = v
	}
	if v := os.Getenv("EKYC_OCR_LANGUAGES"); v != "" {
		cfg.Inference.OCRLanguages = splitList(v)
	}
	if v := os.Getenv("EKYC_BACKOFFICE_URL"); v != "" {
		cfg.Reporting.BackofficeURL = v
	}
	if v := os.Getenv("EKYC_MEDIA_URL"); v != "" {
		cfg.Reporting.MediaURL = v
	}
	if v := os.Getenv("EKYC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EKYC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("EKYC_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
