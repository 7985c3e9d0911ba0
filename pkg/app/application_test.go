package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"cardoctor/internal/auth"
	authhandler "cardoctor/internal/auth/handler"
	bookinghandler "cardoctor/internal/bookings/handler"
	bookingservice "cardoctor/internal/bookings/service"
	"cardoctor/internal/bookings/validator"
	cataloghandler "cardoctor/internal/catalog/handler"
	catalogservice "cardoctor/internal/catalog/service"
	healthhandler "cardoctor/internal/health/handler"
	"cardoctor/pkg/app"
	"cardoctor/pkg/client"
	"cardoctor/pkg/config"
	"cardoctor/pkg/logger"
	"cardoctor/pkg/model"
	"cardoctor/test/memstore"
)

type env struct {
	api       *client.CarDoctorClient
	services  *memstore.ServiceStore
	bookings  *memstore.BookingStore
	publisher *memstore.Publisher
	serviceID primitive.ObjectID
}

type pingOK struct{}

func (pingOK) Ping(context.Context) error { return nil }

func newConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		AccessTokenSecret:  "end-to-end-secret",
		TokenTTL:           time.Hour,
		RequestTimeout:     5 * time.Second,
		IdempotencyTTL:     time.Hour,
		MaxRequestSize:     1 << 20,
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		IdleTimeout:        5 * time.Second,
		ShutdownTimeout:    time.Second,
		CORSAllowedOrigins: []string{"*"},
		Log:                logger.Discard(),
	}
}

func newEnv(t *testing.T, cfg *config.Config) *env {
	t.Helper()

	services := memstore.NewServiceStore(
		model.ServiceDocument{"title": "Full Car Repair", "price": 200.0, "service_id": "01", "img": "repair.jpg", "description": "everything"},
		model.ServiceDocument{"title": "Engine Oil Change", "price": 20.0, "service_id": "02", "img": "oil.jpg"},
		model.ServiceDocument{"title": "Battery Charge", "price": 50.0, "service_id": "03", "img": "battery.jpg"},
		model.ServiceDocument{"title": "Brake (Pads)", "price": 80.0, "service_id": "04", "img": "brake.jpg"},
	)
	serviceID := services.Add(model.ServiceDocument{"title": "Automatic Services", "price": 120.0, "service_id": "05", "img": "auto.jpg", "facility": []any{"a"}})
	bookings := memstore.NewBookingStore()
	publisher := memstore.NewPublisher()

	tokens := auth.NewTokenService(cfg.AccessTokenSecret, cfg.TokenTTL)
	guard := auth.NewGuard(tokens, cfg.Log)
	catalog := catalogservice.NewCatalogService(services, cfg.Log)
	bookingSvc := bookingservice.NewBookingService(bookings, validator.NewBookingValidator(cfg.Log), publisher,
		bookingservice.Options{
			StrictOwnership:         cfg.StrictOwnership,
			StrictStatusTransitions: cfg.StrictStatusTransitions,
		}, cfg.Log)

	application := app.NewApplication(cfg)
	application.SetApp(
		healthhandler.NewHealthHandler(pingOK{}, nil, cfg.Log),
		authhandler.NewTokenHandler(tokens, cfg.Log),
		cataloghandler.NewServiceHandler(catalog, cfg.Log),
		bookinghandler.NewBookingHandler(bookingSvc, guard, cfg.GuardAllBookingRoutes, cfg.Log),
	)
	application.OnShutdown("publisher", func(context.Context) error { return publisher.Close() })

	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		server.Close()
		application.Close(context.Background())
	})

	return &env{
		api:       client.NewCarDoctorClient(server.URL),
		services:  services,
		bookings:  bookings,
		publisher: publisher,
		serviceID: serviceID,
	}
}

func (e *env) token(t *testing.T, claims map[string]any) string {
	t.Helper()
	token, err := e.api.IssueToken(context.Background(), claims)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	return token
}

func apiError(t *testing.T, err error) *client.APIError {
	t.Helper()
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	return apiErr
}

func TestRootAndHealth(t *testing.T) {
	e := newEnv(t, newConfig())
	ctx := context.Background()

	resp, err := e.api.HTTP().GET(ctx, "/", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Doctor is running", string(resp.Body))

	resp, err = e.api.HTTP().GET(ctx, "/ready", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, e.api.HTTP().WaitForHealthy(time.Second))
}

func TestServices(t *testing.T) {
	e := newEnv(t, newConfig())
	ctx := context.Background()

	t.Run("descending by default", func(t *testing.T) {
		services, err := e.api.ListServices(ctx, "", "")
		require.NoError(t, err)
		require.Len(t, services, 5)
		assert.Equal(t, 200.0, services[0]["price"])
		assert.Equal(t, 20.0, services[4]["price"])
		assert.Equal(t, "everything", services[0]["description"])
	})

	t.Run("ascending only for 1", func(t *testing.T) {
		for _, sort := range []string{"1", "1.0", " 1 "} {
			services, err := e.api.ListServices(ctx, sort, "")
			require.NoError(t, err)
			assert.Equal(t, 20.0, services[0]["price"], "sort=%q", sort)
		}
		services, err := e.api.ListServices(ctx, "-1", "")
		require.NoError(t, err)
		assert.Equal(t, 200.0, services[0]["price"])
	})

	t.Run("search is case-insensitive and literal", func(t *testing.T) {
		services, err := e.api.ListServices(ctx, "1", "OIL")
		require.NoError(t, err)
		require.Len(t, services, 1)
		assert.Equal(t, "Engine Oil Change", services[0]["title"])

		services, err = e.api.ListServices(ctx, "", "(pads)")
		require.NoError(t, err)
		require.Len(t, services, 1)

		services, err = e.api.ListServices(ctx, "", ".*")
		require.NoError(t, err)
		assert.Empty(t, services)
	})

	t.Run("detail is projected", func(t *testing.T) {
		svc, err := e.api.GetService(ctx, e.serviceID.Hex())
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.Equal(t, e.serviceID, svc.ID)
		assert.Equal(t, "Automatic Services", svc.Title)
		assert.Equal(t, 120.0, svc.Price)

		resp, err := e.api.HTTP().GET(ctx, "/services/"+e.serviceID.Hex(), "")
		require.NoError(t, err)
		assert.NotContains(t, string(resp.Body), "facility")
	})

	t.Run("unknown id is null", func(t *testing.T) {
		resp, err := e.api.HTTP().GET(ctx, "/services/"+primitive.NewObjectID().Hex(), "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "null\n", string(resp.Body))
	})

	t.Run("malformed id is a server error", func(t *testing.T) {
		_, err := e.api.GetService(ctx, "abc")
		apiErr := apiError(t, err)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, "Internal server error", apiErr.Message)
	})
}

func TestBookingLifecycle(t *testing.T) {
	e := newEnv(t, newConfig())
	ctx := context.Background()
	alice := e.token(t, map[string]any{"email": "alice@example.com"})

	first, err := e.api.CreateBooking(ctx, "", model.Booking{"email": "alice@example.com", "service": "Oil Change", "price": "20"})
	require.NoError(t, err)
	assert.True(t, first.Acknowledged)
	firstID, ok := first.InsertedID.(string)
	require.True(t, ok)

	_, err = e.api.CreateBooking(ctx, "", model.Booking{"email": "alice@example.com", "service": "Battery Charge"})
	require.NoError(t, err)
	_, err = e.api.CreateBooking(ctx, "", model.Booking{"email": "bob@example.com"})
	require.NoError(t, err)

	mine, err := e.api.ListBookings(ctx, alice, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, b := range mine {
		email, _ := b.Email()
		assert.Equal(t, "alice@example.com", email)
	}

	_, err = e.api.ListBookings(ctx, alice, "bob@example.com")
	apiErr := apiError(t, err)
	assert.Equal(t, http.StatusOK, apiErr.Status)
	assert.Equal(t, "Forbidden access", apiErr.Message)

	_, err = e.api.ListBookings(ctx, "", "alice@example.com")
	assert.Equal(t, http.StatusUnauthorized, apiError(t, err).Status)

	_, err = e.api.ListBookings(ctx, "not-a-token", "alice@example.com")
	assert.Equal(t, http.StatusForbidden, apiError(t, err).Status)

	confirmed := "confirmed"
	updated, err := e.api.UpdateStatus(ctx, "", firstID, &confirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.MatchedCount)
	assert.Equal(t, int64(1), updated.ModifiedCount)

	again, err := e.api.UpdateStatus(ctx, "", firstID, &confirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.ModifiedCount)

	mine, err = e.api.ListBookings(ctx, alice, "alice@example.com")
	require.NoError(t, err)
	var statuses []string
	for _, b := range mine {
		if status, ok := b.Status(); ok {
			statuses = append(statuses, status)
		}
	}
	assert.Equal(t, []string{"confirmed"}, statuses)

	deleted, err := e.api.DeleteBooking(ctx, "", firstID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted.DeletedCount)

	deleted, err = e.api.DeleteBooking(ctx, "", firstID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted.DeletedCount)

	_, err = e.api.DeleteBooking(ctx, "", "zzz")
	assert.Equal(t, http.StatusInternalServerError, apiError(t, err).Status)

	assert.Equal(t, []string{
		bookingservice.EventBookingCreated,
		bookingservice.EventBookingCreated,
		bookingservice.EventBookingCreated,
		bookingservice.EventBookingStatusUpdated,
		bookingservice.EventBookingDeleted,
	}, e.publisher.EventTypes())
	assert.Equal(t, 2, e.bookings.Len())
}

func TestBookingStatusKeepsJSONType(t *testing.T) {
	e := newEnv(t, newConfig())
	ctx := context.Background()

	created, err := e.api.CreateBooking(ctx, "", model.Booking{"email": "frank@example.com"})
	require.NoError(t, err)
	id, ok := created.InsertedID.(string)
	require.True(t, ok)

	resp, err := e.api.HTTP().Do(ctx, client.Request{
		Method: http.MethodPatch,
		Path:   "/bookings/" + id,
		Body:   map[string]any{"status": 5},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := e.bookings.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, float64(5), stored["status"])
}

func TestBookingsWithoutEmailClaim(t *testing.T) {
	e := newEnv(t, newConfig())
	ctx := context.Background()
	anonymous := e.token(t, map[string]any{"role": "admin"})

	_, err := e.api.CreateBooking(ctx, "", model.Booking{"email": "alice@example.com"})
	require.NoError(t, err)
	_, err = e.api.CreateBooking(ctx, "", model.Booking{"email": "bob@example.com"})
	require.NoError(t, err)

	all, err := e.api.ListBookings(ctx, anonymous, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = e.api.ListBookings(ctx, anonymous, "alice@example.com")
	assert.Equal(t, "Forbidden access", apiError(t, err).Message)
}

func TestHardeningMiddleware(t *testing.T) {
	e := newEnv(t, newConfig())
	ctx := context.Background()

	t.Run("idempotent create", func(t *testing.T) {
		req := client.Request{
			Method:  http.MethodPost,
			Path:    "/bookings",
			Body:    model.Booking{"email": "carol@example.com"},
			Headers: map[string]string{"Idempotency-Key": "create-carol"},
		}
		first, err := e.api.HTTP().Do(ctx, req)
		require.NoError(t, err)
		second, err := e.api.HTTP().Do(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, second.StatusCode)
		assert.Equal(t, string(first.Body), string(second.Body))
		assert.Equal(t, 1, e.bookings.Len())
	})

	t.Run("idempotency key reused with another body", func(t *testing.T) {
		send := func(email string) *client.Response {
			resp, err := e.api.HTTP().Do(ctx, client.Request{
				Method:  http.MethodPost,
				Path:    "/bookings",
				Body:    model.Booking{"email": email},
				Headers: map[string]string{"Idempotency-Key": "create-dave"},
			})
			require.NoError(t, err)
			return resp
		}

		before := e.bookings.Len()
		assert.Equal(t, http.StatusOK, send("dave@example.com").StatusCode)
		assert.Equal(t, http.StatusUnprocessableEntity, send("erin@example.com").StatusCode)
		assert.Equal(t, before+1, e.bookings.Len())
	})

	t.Run("tokens are issued per request under a shared key", func(t *testing.T) {
		tokens := auth.NewTokenService("end-to-end-secret", time.Hour)
		for _, email := range []string{"alice@example.com", "mallory@example.com"} {
			resp, err := e.api.HTTP().Do(ctx, client.Request{
				Method:  http.MethodPost,
				Path:    "/jwt",
				Body:    map[string]any{"email": email},
				Headers: map[string]string{"Idempotency-Key": "login"},
			})
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var out struct {
				Token string `json:"token"`
			}
			require.NoError(t, resp.DecodeJSON(&out))
			claims, err := tokens.Verify(out.Token)
			require.NoError(t, err)
			got, _ := claims.Email()
			assert.Equal(t, email, got)
		}
	})

	t.Run("non-json body rejected", func(t *testing.T) {
		resp, err := e.api.HTTP().Do(ctx, client.Request{
			Method:  http.MethodPost,
			Path:    "/bookings",
			RawBody: []byte("email=x"),
			Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("request id echoed", func(t *testing.T) {
		resp, err := e.api.HTTP().GET(ctx, "/services", "")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("cors preflight", func(t *testing.T) {
		resp, err := e.api.HTTP().Do(ctx, client.Request{
			Method: http.MethodOptions,
			Path:   "/bookings",
			Headers: map[string]string{
				"Origin":                         "http://localhost:5173",
				"Access-Control-Request-Method":  http.MethodPatch,
				"Access-Control-Request-Headers": "authorization,content-type",
			},
		})
		require.NoError(t, err)
		assert.Less(t, resp.StatusCode, 300)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("token payload must be an object", func(t *testing.T) {
		resp, err := e.api.HTTP().Do(ctx, client.Request{
			Method:  http.MethodPost,
			Path:    "/jwt",
			RawBody: []byte(`["x"]`),
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestStrictModes(t *testing.T) {
	cfg := newConfig()
	cfg.StrictOwnership = true
	cfg.StrictStatusTransitions = true
	cfg.GuardAllBookingRoutes = true
	e := newEnv(t, cfg)
	ctx := context.Background()
	alice := e.token(t, map[string]any{"email": "alice@example.com"})

	_, err := e.api.CreateBooking(ctx, "", model.Booking{"email": "alice@example.com"})
	assert.Equal(t, http.StatusUnauthorized, apiError(t, err).Status)

	created, err := e.api.CreateBooking(ctx, alice, model.Booking{"email": "alice@example.com"})
	require.NoError(t, err)
	id := created.InsertedID.(string)

	_, err = e.api.ListBookings(ctx, alice, "bob@example.com")
	assert.Equal(t, http.StatusForbidden, apiError(t, err).Status)

	bogus := "shipped"
	_, err = e.api.UpdateStatus(ctx, alice, id, &bogus)
	assert.Equal(t, http.StatusUnprocessableEntity, apiError(t, err).Status)

	completed := "completed"
	_, err = e.api.UpdateStatus(ctx, alice, id, &completed)
	assert.Equal(t, http.StatusConflict, apiError(t, err).Status)

	for _, status := range []string{"confirmed", "completed", "cancelled"} {
		result, err := e.api.UpdateStatus(ctx, alice, id, &status)
		require.NoError(t, err, status)
		assert.Equal(t, int64(1), result.ModifiedCount, status)
	}

	pending := "pending"
	_, err = e.api.UpdateStatus(ctx, alice, id, &pending)
	assert.Equal(t, http.StatusConflict, apiError(t, err).Status)

	result, err := e.api.UpdateStatus(ctx, alice, primitive.NewObjectID().Hex(), &pending)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.MatchedCount)
}
