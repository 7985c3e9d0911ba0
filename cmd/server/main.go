package main

import (
	"context"

	"cardoctor/internal/auth"
	authhandler "cardoctor/internal/auth/handler"
	bookinghandler "cardoctor/internal/bookings/handler"
	bookingrepository "cardoctor/internal/bookings/repository"
	bookingservice "cardoctor/internal/bookings/service"
	"cardoctor/internal/bookings/validator"
	cataloghandler "cardoctor/internal/catalog/handler"
	catalogrepository "cardoctor/internal/catalog/repository"
	catalogservice "cardoctor/internal/catalog/service"
	healthhandler "cardoctor/internal/health/handler"
	"cardoctor/pkg/app"
	"cardoctor/pkg/config"
	"cardoctor/pkg/kafka"
	kafka_middleware "cardoctor/pkg/kafka/middleware"
)

const ServiceName = "car-doctor"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Car Doctor service")

	publisher, metrics := initPublisher(cfg)
	db := cfg.Client.Database(cfg.MongoDatabaseName)

	tokens := auth.NewTokenService(cfg.AccessTokenSecret, cfg.TokenTTL)
	guard := auth.NewGuard(tokens, cfg.Log)

	catalog := catalogservice.NewCatalogService(
		catalogrepository.NewMongoServiceRepository(db, cfg.MongoConnTimeout),
		cfg.Log,
	)
	bookings := bookingservice.NewBookingService(
		bookingrepository.NewMongoBookingRepository(db, cfg.MongoConnTimeout),
		validator.NewBookingValidator(cfg.Log),
		publisher,
		bookingservice.Options{
			StrictOwnership:         cfg.StrictOwnership,
			StrictStatusTransitions: cfg.StrictStatusTransitions,
		},
		cfg.Log,
	)
	cfg.Log.Info("Services initialized", "database", cfg.MongoDatabaseName)

	var events healthhandler.EventStats
	if metrics != nil {
		events = metrics
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		healthhandler.NewHealthHandler(cfg.Client, events, cfg.Log),
		authhandler.NewTokenHandler(tokens, cfg.Log),
		cataloghandler.NewServiceHandler(catalog, cfg.Log),
		bookinghandler.NewBookingHandler(bookings, guard, cfg.GuardAllBookingRoutes, cfg.Log),
	)
	serverApp.OnShutdown("kafka", func(context.Context) error {
		return publisher.Close()
	})
	serverApp.OnShutdown("mongo", func(context.Context) error {
		cfg.GracefulShutdown()
		return nil
	})
	serverApp.Run()
}

// initPublisher returns the booking event publisher. Without brokers, events
// are dropped.
func initPublisher(cfg *config.Config) (kafka.Publisher, *kafka_middleware.Metrics) {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Info("Kafka brokers not configured, booking events disabled")
		return kafka.NopPublisher{}, nil
	}

	producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.KafkaBrokers, cfg.KafkaBookingTopic), cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	metrics := kafka_middleware.NewMetrics()
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(metrics.ProducerMiddleware())
	metrics.TrackWriter(producer)

	cfg.Log.Info("Kafka producer initialized",
		"brokers", cfg.KafkaBrokers,
		"topic", cfg.KafkaBookingTopic,
	)
	return producer, metrics
}
