package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"cardoctor/pkg/client"
	"cardoctor/pkg/logger"
)

var (
	mongoURIRegex   = regexp.MustCompile(`^mongodb(\+srv)?://`)
	credentialRegex = regexp.MustCompile(`(mongodb(\+srv)?://)[^:/@]+:[^@]+@`)
)

type Config struct {
	MongoURI          string        `validate:"required,mongouri"`
	MongoDatabaseName string        `validate:"required"`
	MongoConnTimeout  time.Duration `validate:"gt=0"`

	Port     string `validate:"required,tcpport"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`

	AccessTokenSecret string        `validate:"required"`
	TokenTTL          time.Duration `validate:"gt=0"`

	RequestTimeout time.Duration `validate:"gt=0"`
	IdempotencyTTL time.Duration `validate:"gt=0"`
	MaxRequestSize int           `validate:"gt=0"`

	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	CORSAllowedOrigins []string `validate:"min=1"`

	// Opt-in hardening. All default to the permissive behavior.
	GuardAllBookingRoutes   bool
	StrictOwnership         bool
	StrictStatusTransitions bool

	KafkaBrokers      []string
	KafkaBookingTopic string `validate:"required_with=KafkaBrokers"`

	Log    *logger.Logger `validate:"-"`
	Client *client.Client `validate:"-"`
}

// Load reads .env (when present) and the process environment, validates the
// result and exits on invalid configuration.
func Load(serviceName string) *Config {
	envFileErr := godotenv.Load()

	cfg := fromEnv()
	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})
	cfg.Client = client.NewClient()

	if envFileErr != nil && !errors.Is(envFileErr, os.ErrNotExist) {
		cfg.Log.Warn("Failed to load .env file", "error", envFileErr)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func fromEnv() *Config {
	return &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port:     getEnvStr(EnvPort, DefaultPort),
		LogLevel: strings.ToLower(getEnvStr(EnvLogLevel, DefaultLogLevel)),

		AccessTokenSecret: getEnvStr(EnvAccessTokenSecret, ""),
		TokenTTL:          getEnvDuration(EnvTokenTTL, DefaultTokenTTL),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		CORSAllowedOrigins: getEnvList(EnvCORSAllowedOrigins, DefaultCORSAllowedOrigins),

		GuardAllBookingRoutes:   getEnvBool(EnvGuardAllBookingRoutes, false),
		StrictOwnership:         getEnvBool(EnvStrictOwnership, false),
		StrictStatusTransitions: getEnvBool(EnvStrictStatusTransitions, false),

		KafkaBrokers:      getEnvList(EnvKafkaBrokers, ""),
		KafkaBookingTopic: getEnvStr(EnvKafkaBookingTopic, DefaultKafkaBookingTopic),
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	v := validator.New()
	_ = v.RegisterValidation("mongouri", func(fl validator.FieldLevel) bool {
		return mongoURIRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("tcpport", func(fl validator.FieldLevel) bool {
		port, err := strconv.Atoi(fl.Field().String())
		return err == nil && port >= 1 && port <= 65535
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	errMsg := "Configuration validation failed:\n"
	for i, fe := range validationErrs {
		errMsg += fmt.Sprintf("  %d. %s\n", i+1, describe(fe))
	}
	return errors.New(errMsg)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s cannot be empty", fe.Field())
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", fe.Field(), fe.Param())
	case "mongouri":
		return fmt.Sprintf("%s must start with 'mongodb://' or 'mongodb+srv://', got: %s", fe.Field(), redactMongoURI(fmt.Sprint(fe.Value())))
	case "tcpport":
		return fmt.Sprintf("%s must be between 1 and 65535, got: %v", fe.Field(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be positive, got: %v", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got: %v", fe.Field(), fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must have at least %s entry", fe.Field(), fe.Param())
	default:
		return fe.Error()
	}
}

// LogConfiguration logs the effective configuration. The token secret is
// reported only as set/unset.
func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"access_secret_set", cfg.AccessTokenSecret != "",
		"token_ttl", cfg.TokenTTL,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"cors_allowed_origins", cfg.CORSAllowedOrigins,
		"guard_all_booking_routes", cfg.GuardAllBookingRoutes,
		"strict_ownership", cfg.StrictOwnership,
		"strict_status_transitions", cfg.StrictStatusTransitions,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_booking_topic", cfg.KafkaBookingTopic,
	)
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}

func redactMongoURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnvStr(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
