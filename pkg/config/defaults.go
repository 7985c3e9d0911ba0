package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "carDoctor"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "5000"
	DefaultLogLevel = "info"

	DefaultTokenTTL = 1 * time.Hour

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultCORSAllowedOrigins = "*"

	DefaultKafkaBookingTopic = "bookings.events"

	ServicesCollection = "services"
	BookingsCollection = "bookings"
)
