package testutil

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

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
	mongoMigration "cardoctor/internal/migrations/mongo"
	"cardoctor/pkg/app"
	"cardoctor/pkg/client"
	"cardoctor/pkg/config"
	"cardoctor/pkg/logger"
	"cardoctor/test/memstore"
)

const (
	EnvMongoURI     = "TEST_MONGO_URI"
	EnvDatabaseName = "TEST_DB_NAME"

	TokenSecret = "integration-secret"
)

type TestEnv struct {
	MongoURI     string
	DatabaseName string
	Options      bookingservice.Options
	GuardAll     bool
}

// NewTestEnv skips the test unless TEST_MONGO_URI points at a reachable
// MongoDB.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	mongoURI := os.Getenv(EnvMongoURI)
	if mongoURI == "" {
		t.Skipf("%s not set, skipping integration test", EnvMongoURI)
	}

	return &TestEnv{
		MongoURI:     mongoURI,
		DatabaseName: getEnv(EnvDatabaseName, DefaultDatabaseName),
	}
}

// Setup migrates a clean database and starts the full HTTP stack against it.
// Events are recorded in memory.
func (e *TestEnv) Setup(t *testing.T) (*MongoHelper, *client.CarDoctorClient, *memstore.Publisher) {
	t.Helper()

	mongo := NewMongoHelper(t, e.MongoURI, e.DatabaseName)
	mongo.CleanDatabase(t)

	log := logger.Discard()
	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()
	if err := mongoMigration.RunMigration(ctx, mongo.Database, log); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := &config.Config{
		Port:               "0",
		AccessTokenSecret:  TokenSecret,
		TokenTTL:           time.Hour,
		RequestTimeout:     10 * time.Second,
		IdempotencyTTL:     time.Hour,
		MaxRequestSize:     1 << 20,
		ShutdownTimeout:    5 * time.Second,
		CORSAllowedOrigins: []string{"*"},
		Log:                log,
	}

	publisher := memstore.NewPublisher()
	tokens := auth.NewTokenService(cfg.AccessTokenSecret, cfg.TokenTTL)

	catalog := catalogservice.NewCatalogService(
		catalogrepository.NewMongoServiceRepository(mongo.Database, ConnectionTimeout),
		log,
	)
	bookings := bookingservice.NewBookingService(
		bookingrepository.NewMongoBookingRepository(mongo.Database, ConnectionTimeout),
		validator.NewBookingValidator(log),
		publisher,
		e.Options,
		log,
	)

	application := app.NewApplication(cfg)
	application.SetApp(
		healthhandler.NewHealthHandler(mongo, nil, log),
		authhandler.NewTokenHandler(tokens, log),
		cataloghandler.NewServiceHandler(catalog, log),
		bookinghandler.NewBookingHandler(bookings, auth.NewGuard(tokens, log), e.GuardAll, log),
	)

	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		server.Close()
		application.Close(context.Background())
	})

	api := client.NewCarDoctorClient(server.URL)
	if err := api.HTTP().WaitForHealthy(DefaultHealthCheckTimeout); err != nil {
		t.Fatalf("server not healthy: %v", err)
	}
	return mongo, api, publisher
}

func (e *TestEnv) Cleanup(t *testing.T, mongo *MongoHelper) {
	t.Helper()

	if mongo != nil {
		mongo.CleanDatabase(t)
		mongo.Close(t)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

const (
	DefaultHealthCheckTimeout = 5 * time.Second
)
