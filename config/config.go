package config

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	TLSMinVersion                 string   `env:"HTTP_SERVER_TLS_MIN_VERSION" env-default:"TLS_1_2"`
	TLSMaxVersion                 string   `env:"HTTP_SERVER_TLS_MAX_VERSION" env-default:"TLS_1_2"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (oracle rate limiter)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`

	// Gemini oracle
	GeminiAPIKey      string        `env:"GEMINI_API_KEY" env-default:""`
	GeminiModel       string        `env:"GEMINI_MODEL" env-default:"gemini-2.0-flash"`
	OracleTimeout     time.Duration `env:"ORACLE_TIMEOUT" env-default:"30s"`
	OracleMaxAttempts int           `env:"ORACLE_MAX_ATTEMPTS" env-default:"3"`
	OracleMinInterval time.Duration `env:"ORACLE_MIN_INTERVAL" env-default:"500ms"`
	OracleBackoffBase time.Duration `env:"ORACLE_BACKOFF_BASE" env-default:"1s"`

	// Shared oracle rate limit, used instead of the in-process pacer when
	// Redis is enabled
	OracleRateLimit   int           `env:"ORACLE_RATE_LIMIT" env-default:"120"`
	OracleRateWindow  time.Duration `env:"ORACLE_RATE_WINDOW" env-default:"1m"`
	OracleRateMaxWait time.Duration `env:"ORACLE_RATE_MAX_WAIT" env-default:"2m"`

	// Matching pipeline
	MatchBatchSize         int     `env:"MATCH_BATCH_SIZE" env-default:"100"`
	MatchTopCandidates     int     `env:"MATCH_TOP_CANDIDATES" env-default:"5"`
	MatchFallbackThreshold float64 `env:"MATCH_FALLBACK_THRESHOLD" env-default:"0.6"`
	MatchCreditBuffer      int     `env:"MATCH_CREDIT_BUFFER" env-default:"50"`
	MatchIncomeBufferPct   float64 `env:"MATCH_INCOME_BUFFER_PCT" env-default:"0.15"`
	MatchAgeBuffer         int     `env:"MATCH_AGE_BUFFER" env-default:"2"`

	// Matching worker
	MatchWorkerEnabled  bool          `env:"MATCH_WORKER_ENABLED" env-default:"true"`
	MatchWorkerInterval time.Duration `env:"MATCH_WORKER_INTERVAL" env-default:"5m"`

	// Kafka Producer settings
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"clover.matches"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`

	// AWS (S3 ingest, SES notifications)
	AWSRegion           string        `env:"AWS_REGION" env-default:"us-east-1"`
	S3UsePathStyle      bool          `env:"S3_USE_PATH_STYLE" env-default:"false"`
	IngestBucket        string        `env:"INGEST_BUCKET" env-default:"clover-uploads"`
	IngestPresignExpiry time.Duration `env:"INGEST_PRESIGN_EXPIRY" env-default:"15m"`

	// Notifications
	NotifyEnabled     bool          `env:"NOTIFY_ENABLED" env-default:"false"`
	NotifyFromAddress string        `env:"NOTIFY_FROM_ADDRESS" env-default:"matches@clover.dev"`
	NotifyBatchSize   int           `env:"NOTIFY_BATCH_SIZE" env-default:"50"`
	NotifyMaxPerEmail int           `env:"NOTIFY_MAX_PER_EMAIL" env-default:"5"`
	NotifySendDelay   time.Duration `env:"NOTIFY_SEND_DELAY" env-default:"200ms"`

	// Tracing
	TracingEnabled  bool          `env:"TRACING_ENABLED" env-default:"false"`
	TracingExporter string        `env:"TRACING_EXPORTER" env-default:"console"` // console or otlp
	OTLPEndpoint    string        `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol    string        `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure    bool          `env:"OTLP_INSECURE" env-default:"true"`
	OTLPTimeout     time.Duration `env:"OTLP_TIMEOUT" env-default:"10s"`
}

// New loads the configuration from the environment
func New() (*Config, error) {
	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to bind environment config: %w", err)
	}

	return cfg, nil
}
