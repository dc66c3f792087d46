package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Swagger     SwaggerConfig     `mapstructure:"swagger"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Profiling   ProfilingConfig   `mapstructure:"profiling"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Crypto      CryptoConfig      `mapstructure:"crypto"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	KYC         KYCConfig         `mapstructure:"kyc"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // minutes
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig configures validation of tokens minted by the identity service.
type JWTConfig struct {
	Secret                string        `mapstructure:"secret"`
	Issuer                string        `mapstructure:"issuer"`
	AccessTokenExpiration time.Duration `mapstructure:"access_token_expiration"`
}

type HTTPConfig struct {
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes       int           `mapstructure:"max_header_bytes"`
	MaxBodySize          int64         `mapstructure:"max_body_size"`
	CORSAllowOrigins     []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods     []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders     []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies       []string      `mapstructure:"trusted_proxies"`
	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests    int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow      time.Duration `mapstructure:"rate_limit_window"`
	KYCRateLimitRequests int           `mapstructure:"kyc_rate_limit_requests"`
	KYCRateLimitWindow   time.Duration `mapstructure:"kyc_rate_limit_window"`
}

type SwaggerConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	RequireAuth bool     `mapstructure:"require_auth"`
	AllowedIPs  []string `mapstructure:"allowed_ips"`
}

// TelemetryConfig covers OTLP export of traces, metrics and logs.
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // host:port of the OTLP gRPC receiver
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	LogsEnabled       bool          `mapstructure:"logs_enabled"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

type ProfilingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServerAddress     string `mapstructure:"server_address"`
	ApplicationName   string `mapstructure:"application_name"`
	BasicAuthUser     string `mapstructure:"basic_auth_user"`
	BasicAuthPassword string `mapstructure:"basic_auth_password"`
}

// LedgerConfig points at the node and the identity registry contract.
type LedgerConfig struct {
	// Driver is "ethereum" or "memory". The memory ledger is for local runs only.
	Driver              string        `mapstructure:"driver"`
	RPCURL              string        `mapstructure:"rpc_url"`
	PrivateKey          string        `mapstructure:"private_key"`
	ContractAddress     string        `mapstructure:"contract_address"`
	ChainID             uint64        `mapstructure:"chain_id"`
	NetworkName         string        `mapstructure:"network_name"`
	Confirmations       uint64        `mapstructure:"confirmations"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	DropAfterMisses     int           `mapstructure:"drop_after_misses"`
}

// WorkerConfig tunes the reconciliation worker and the fee caps of each
// transaction kind.
type WorkerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	FinalityTimeout   time.Duration `mapstructure:"finality_timeout"`
	EntityConcurrency int           `mapstructure:"entity_concurrency"`
	SaveAttempts      int           `mapstructure:"save_attempts"`
	SaveBackoff       time.Duration `mapstructure:"save_backoff"`
	MinBalance        string        `mapstructure:"min_balance"` // native units, decimal string

	RegisterGasLimit   uint64 `mapstructure:"register_gas_limit"`
	RegisterMaxFeeGwei string `mapstructure:"register_max_fee_gwei"`
	RegisterTipGwei    string `mapstructure:"register_tip_gwei"`
	UpdateGasLimit     uint64 `mapstructure:"update_gas_limit"`
	UpdateMaxFeeGwei   string `mapstructure:"update_max_fee_gwei"`
	UpdateTipGwei      string `mapstructure:"update_tip_gwei"`
	ScoreGasLimit      uint64 `mapstructure:"score_gas_limit"`
	ScoreMaxFeeGwei    string `mapstructure:"score_max_fee_gwei"`
	ScoreTipGwei       string `mapstructure:"score_tip_gwei"`
}

type StorageConfig struct {
	// Driver is "s3" or "memory".
	Driver       string `mapstructure:"driver"`
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	Prefix       string `mapstructure:"prefix"`
}

type CryptoConfig struct {
	// PayloadSecret is the master secret that payload keys are derived from.
	PayloadSecret string `mapstructure:"payload_secret"`
	KeyID         string `mapstructure:"key_id"`
}

// KafkaConfig controls publishing of work item transition events.
type KafkaConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	ClientID          string   `mapstructure:"client_id"`
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
}

type KYCConfig struct {
	OTPTTL time.Duration `mapstructure:"otp_ttl"`
	// DemoMode logs generated OTPs instead of delivering them.
	DemoMode bool `mapstructure:"demo_mode"`
}

type IdempotencyConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	AllowInMemory bool          `mapstructure:"allow_in_memory"`
}

// defaults registers every key. Viper only applies environment overrides
// during Unmarshal to keys it knows, so settings without a useful default
// are listed with their zero value.
var defaults = map[string]any{
	"app.name": "tsafe-backend",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "tsafe",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,

	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.secret":                  "",
	"jwt.issuer":                  "tsafe-backend",
	"jwt.access_token_expiration": 7 * 24 * time.Hour,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":            15 * time.Second,
	"http.write_timeout":           15 * time.Second,
	"http.idle_timeout":            time.Minute,
	"http.shutdown_timeout":        30 * time.Second,
	"http.max_header_bytes":        1 << 20,
	"http.max_body_size":           10 << 20,
	"http.cors_allow_origins":      []string{},
	"http.cors_allow_methods":      []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
	"http.cors_allow_headers":      []string{"Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key"},
	"http.trusted_proxies":         []string{},
	"http.rate_limit_enabled":      false,
	"http.rate_limit_requests":     100,
	"http.rate_limit_window":       time.Minute,
	"http.kyc_rate_limit_requests": 5,
	"http.kyc_rate_limit_window":   time.Minute,

	"swagger.enabled":      false,
	"swagger.require_auth": false,
	"swagger.allowed_ips":  []string{},

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "tsafe-backend",
	"telemetry.insecure":                false,
	"telemetry.metrics_enabled":         false,
	"telemetry.metrics_interval":        time.Minute,
	"telemetry.logs_enabled":            false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,

	"profiling.enabled":             false,
	"profiling.server_address":      "http://localhost:4040",
	"profiling.application_name":    "tsafe-backend",
	"profiling.basic_auth_user":     "",
	"profiling.basic_auth_password": "",

	"ledger.driver":                "ethereum",
	"ledger.rpc_url":               "",
	"ledger.private_key":           "",
	"ledger.contract_address":      "",
	"ledger.chain_id":              0,
	"ledger.network_name":          "polygon-amoy",
	"ledger.confirmations":         1,
	"ledger.receipt_poll_interval": 2 * time.Second,
	"ledger.drop_after_misses":     5,

	"worker.enabled":               false,
	"worker.poll_interval":         15 * time.Second,
	"worker.batch_size":            20,
	"worker.call_timeout":          30 * time.Second,
	"worker.finality_timeout":      5 * time.Minute,
	"worker.entity_concurrency":    1,
	"worker.save_attempts":         3,
	"worker.save_backoff":          200 * time.Millisecond,
	"worker.min_balance":           "0.01",
	"worker.register_gas_limit":    500_000,
	"worker.register_max_fee_gwei": "20",
	"worker.register_tip_gwei":     "2",
	"worker.update_gas_limit":      300_000,
	"worker.update_max_fee_gwei":   "",
	"worker.update_tip_gwei":       "",
	"worker.score_gas_limit":       250_000,
	"worker.score_max_fee_gwei":    "",
	"worker.score_tip_gwei":        "",

	"storage.driver":         "s3",
	"storage.endpoint":       "",
	"storage.region":         "us-east-1",
	"storage.bucket":         "",
	"storage.access_key":     "",
	"storage.secret_key":     "",
	"storage.use_ssl":        false,
	"storage.use_path_style": false,
	"storage.prefix":         "payloads/",

	"crypto.payload_secret": "",
	"crypto.key_id":         "v1",

	"kafka.enabled":            false,
	"kafka.brokers":            []string{},
	"kafka.topic":              "tsafe.workitem.transitions",
	"kafka.client_id":          "tsafe-backend",
	"kafka.partitions":         3,
	"kafka.replication_factor": 1,

	"kyc.otp_ttl":   10 * time.Minute,
	"kyc.demo_mode": false,

	"idempotency.enabled":         false,
	"idempotency.ttl":             24 * time.Hour,
	"idempotency.allow_in_memory": false,
}

// Load reads config.toml from ., ./backend or /app when present, then lets
// TSAFE_-prefixed environment variables override any key
// (ledger.private_key becomes TSAFE_LEDGER_PRIVATE_KEY). Empty variables
// count as unset.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("TSAFE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate reports every problem at once.
func (c *Config) validate() error {
	var errs []error
	require := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	db := c.Database
	require(db.MaxOpenConns > 0, "database.max_open_conns must be positive")
	require(db.MaxIdleConns >= 0, "database.max_idle_conns cannot be negative")
	require(db.MaxIdleConns <= db.MaxOpenConns,
		"database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)", db.MaxIdleConns, db.MaxOpenConns)
	require(slices.Contains([]string{"ethereum", "memory"}, c.Ledger.Driver),
		"ledger.driver must be 'ethereum' or 'memory', got %q", c.Ledger.Driver)
	require(slices.Contains([]string{"s3", "memory"}, c.Storage.Driver),
		"storage.driver must be 's3' or 'memory', got %q", c.Storage.Driver)
	require(!c.Kafka.Enabled || len(c.Kafka.Brokers) > 0, "kafka.brokers is required when kafka is enabled")
	require(c.Telemetry.SamplingRatio >= 0 && c.Telemetry.SamplingRatio <= 1,
		"telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)

	if c.IsProduction() {
		require(len(c.JWT.Secret) >= 32, "jwt.secret must be at least 32 characters in production")
		require(db.Password != "", "database.password is required in production")
		require(db.SSLMode != "disable", "database.sslmode cannot be 'disable' in production")
		require(c.Ledger.Driver == "ethereum", "ledger.driver must be 'ethereum' in production")
		require(c.Ledger.PrivateKey != "" && c.Ledger.ContractAddress != "",
			"ledger.private_key and ledger.contract_address are required in production")
		require(c.Storage.Driver == "s3", "storage.driver must be 's3' in production")
		require(len(c.Crypto.PayloadSecret) >= 32, "crypto.payload_secret must be at least 32 characters in production")
		require(!c.KYC.DemoMode, "kyc.demo_mode must be false in production")
		require(!slices.Contains(c.HTTP.CORSAllowOrigins, "*"), "http.cors_allow_origins cannot be '*' in production")
		require(!c.Swagger.Enabled || c.Swagger.RequireAuth || len(c.Swagger.AllowedIPs) > 0,
			"swagger endpoint must be disabled, require authentication, or have IP restriction in production")
		require(!c.Telemetry.DBLogFullSQL, "telemetry.db_log_full_sql must be false in production")
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the app runs with production validation
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns a postgres URL with user, password and database escaped.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
