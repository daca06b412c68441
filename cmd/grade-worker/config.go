package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"quizsys/internal/common/cache"
	"quizsys/internal/common/db"
	commonmw "quizsys/internal/common/http/middleware"
	"quizsys/internal/common/mq"
	"quizsys/internal/common/storage"
	"quizsys/internal/grading/sandbox"
	"quizsys/pkg/utils/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultGradeTopic      = "quiz.grading"
	defaultNotifyTopic     = "quiz.announcements"
	defaultQuestionTTL     = 10 * time.Minute
	defaultEmptyTTL        = 30 * time.Second
	defaultStatusTimeout   = 2 * time.Second
	defaultArchiveTimeout  = 10 * time.Second
	defaultTranscriptBkt   = "quiz-transcripts"
	defaultPreviewMax      = 30
	defaultPreviewWindow   = time.Minute
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr" env:"QUIZ_HTTP_ADDR"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers" env:"QUIZ_KAFKA_BROKERS" env-separator:","`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	GradeTopic    string        `yaml:"gradeTopic" env:"QUIZ_KAFKA_GRADE_TOPIC"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	MaxRetryDelay time.Duration `yaml:"maxRetryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
}

// CacheConfig holds question cache settings.
type CacheConfig struct {
	QuestionTTL time.Duration `yaml:"questionTTL"`
	EmptyTTL    time.Duration `yaml:"emptyTTL"`
}

// StatusConfig holds grading status settings.
type StatusConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// TranscriptConfig holds run transcript archive settings.
type TranscriptConfig struct {
	Enabled bool          `yaml:"enabled"`
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig holds fail notification settings.
type NotifyConfig struct {
	// Topic receives announcements for push delivery; empty disables publishing.
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig holds per-client limits of the HTTP surface.
type RateLimitConfig struct {
	Preview      commonmw.RateLimitPolicy `yaml:"preview"`
	RedisTimeout time.Duration            `yaml:"redisTimeout"`
}

// AppConfig holds grade-worker config.
type AppConfig struct {
	Server     ServerConfig        `yaml:"server"`
	Logger     logger.Config       `yaml:"logger"`
	Kafka      KafkaConfig         `yaml:"kafka"`
	Database   db.MySQLConfig      `yaml:"database"`
	Redis      cache.RedisConfig   `yaml:"redis"`
	MinIO      storage.MinIOConfig `yaml:"minio"`
	Cache      CacheConfig         `yaml:"cache"`
	Status     StatusConfig        `yaml:"status"`
	Transcript TranscriptConfig    `yaml:"transcript"`
	Notify     NotifyConfig        `yaml:"notify"`
	Sandbox    sandbox.Config      `yaml:"sandbox"`
	RateLimit  RateLimitConfig     `yaml:"rateLimit"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads the YAML file, then lets QUIZ_* environment variables
// override connection settings.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment failed: %w", err)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Kafka.GradeTopic == "" {
		cfg.Kafka.GradeTopic = defaultGradeTopic
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = -1
	}
	if cfg.Cache.QuestionTTL == 0 {
		cfg.Cache.QuestionTTL = defaultQuestionTTL
	}
	if cfg.Cache.EmptyTTL == 0 {
		cfg.Cache.EmptyTTL = defaultEmptyTTL
	}
	if cfg.Status.Timeout == 0 {
		cfg.Status.Timeout = defaultStatusTimeout
	}
	if cfg.Transcript.Bucket == "" {
		cfg.Transcript.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Transcript.Bucket == "" {
		cfg.Transcript.Bucket = defaultTranscriptBkt
	}
	if cfg.Transcript.Timeout == 0 {
		cfg.Transcript.Timeout = defaultArchiveTimeout
	}
	if cfg.RateLimit.Preview.Max == 0 {
		cfg.RateLimit.Preview.Max = defaultPreviewMax
	}
	if cfg.RateLimit.Preview.Window == 0 {
		cfg.RateLimit.Preview.Window = defaultPreviewWindow
	}
	if cfg.Transcript.Enabled && cfg.MinIO.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required when transcripts are enabled")
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
}

// subscribeOptions pins prefetch to one: a worker holds a single job at a time.
func (k KafkaConfig) subscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   k.ConsumerGroup,
		PrefetchCount:   1,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		MaxRetryDelay:   k.MaxRetryDelay,
		DeadLetterTopic: k.DeadLetter,
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
