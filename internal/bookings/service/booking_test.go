package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"cardoctor/internal/auth"
	bookingserrors "cardoctor/internal/bookings/errors"
	"cardoctor/internal/bookings/validator"
	apperrors "cardoctor/pkg/errors"
	"cardoctor/pkg/kafka"
	"cardoctor/pkg/logger"
	"cardoctor/pkg/model"
	"cardoctor/pkg/query"
)

type mockBookingRepository struct {
	insertFunc       func(ctx context.Context, booking model.Booking) (any, error)
	findFunc         func(ctx context.Context, filter query.Filter) ([]model.Booking, error)
	findByIDFunc     func(ctx context.Context, id string) (model.Booking, error)
	updateStatusFunc func(ctx context.Context, id string, status any, from []any) (*model.UpdateResult, error)
	deleteFunc       func(ctx context.Context, id string) (int64, error)
}

func (m *mockBookingRepository) Insert(ctx context.Context, booking model.Booking) (any, error) {
	return m.insertFunc(ctx, booking)
}

func (m *mockBookingRepository) Find(ctx context.Context, filter query.Filter) ([]model.Booking, error) {
	return m.findFunc(ctx, filter)
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (model.Booking, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockBookingRepository) UpdateStatus(ctx context.Context, id string, status any, from []any) (*model.UpdateResult, error) {
	return m.updateStatusFunc(ctx, id, status, from)
}

func (m *mockBookingRepository) Delete(ctx context.Context, id string) (int64, error) {
	return m.deleteFunc(ctx, id)
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, m := range p.messages {
		types = append(types, m.EventType())
	}
	return types
}

func strPtr(s string) *string { return &s }

func newService(repo *mockBookingRepository, pub kafka.Publisher, opts Options) BookingService {
	log := logger.Discard()
	return NewBookingService(repo, validator.NewBookingValidator(log), pub, opts, log)
}

func TestList_Ownership(t *testing.T) {
	alice := auth.NewClaims(map[string]any{"email": "alice@example.com"})
	empty := auth.NewClaims(map[string]any{"email": ""})
	noEmail := auth.NewClaims(map[string]any{"sub": "42"})
	nullEmail := auth.NewClaims(map[string]any{"email": nil})

	tests := []struct {
		name       string
		claims     auth.Claims
		email      *string
		wantErr    bool
		wantFilter bool
	}{
		{name: "matching email filters", claims: alice, email: strPtr("alice@example.com"), wantFilter: true},
		{name: "other email", claims: alice, email: strPtr("bob@example.com"), wantErr: true},
		{name: "email omitted", claims: alice, email: nil, wantErr: true},
		{name: "both absent returns all", claims: noEmail, email: nil},
		{name: "claim absent, query present", claims: noEmail, email: strPtr("alice@example.com"), wantErr: true},
		{name: "null claim, query absent", claims: nullEmail, email: nil, wantErr: true},
		{name: "empty claim and empty query returns all", claims: empty, email: strPtr("")},
		{name: "case differs", claims: alice, email: strPtr("Alice@example.com"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFilter query.Filter
			called := false
			repo := &mockBookingRepository{
				findFunc: func(_ context.Context, filter query.Filter) ([]model.Booking, error) {
					called = true
					gotFilter = filter
					return nil, nil
				},
			}

			bookings, err := newService(repo, nil, Options{}).List(context.Background(), tt.claims, tt.email)

			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, called, "store must not be queried on mismatch")
				appErr := apperrors.AsAppError(err)
				assert.Equal(t, http.StatusOK, appErr.StatusCode())
				assert.Equal(t, "Forbidden access", appErr.Message)
				assert.ErrorIs(t, err, bookingserrors.ErrOwnershipMismatch)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, bookings)
			if tt.wantFilter {
				assert.Equal(t, query.Where(query.Eq("email", *tt.email)), gotFilter)
			} else {
				assert.True(t, gotFilter.IsEmpty())
			}
		})
	}
}

func TestList_StrictOwnership(t *testing.T) {
	repo := &mockBookingRepository{}
	svc := newService(repo, nil, Options{StrictOwnership: true})

	_, err := svc.List(context.Background(), auth.NewClaims(map[string]any{"email": "a@b.c"}), strPtr("x@y.z"))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, apperrors.AsAppError(err).StatusCode())
}

func TestCreate(t *testing.T) {
	oid := primitive.NewObjectID()
	var stored model.Booking
	repo := &mockBookingRepository{
		insertFunc: func(_ context.Context, booking model.Booking) (any, error) {
			stored = booking
			return oid, nil
		},
	}
	pub := &recordingPublisher{}
	svc := newService(repo, pub, Options{})

	booking := model.Booking{"email": "alice@example.com", "service": "Oil Change", "price": 25.0, "extra": map[string]any{"note": "x"}}
	result, err := svc.Create(context.Background(), booking)

	require.NoError(t, err)
	assert.True(t, result.Acknowledged)
	assert.Equal(t, oid, result.InsertedID)
	assert.Equal(t, booking, stored)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, EventBookingCreated, pub.messages[0].EventType())
	assert.Equal(t, oid.Hex(), pub.messages[0].Key)
}

func TestCreate_PublishFailureDoesNotFailRequest(t *testing.T) {
	repo := &mockBookingRepository{
		insertFunc: func(context.Context, model.Booking) (any, error) {
			return primitive.NewObjectID(), nil
		},
	}
	pub := &recordingPublisher{err: errors.New("broker down")}

	result, err := newService(repo, pub, Options{}).Create(context.Background(), model.Booking{"email": "a@b.c"})
	require.NoError(t, err)
	assert.True(t, result.Acknowledged)
}

func TestCreate_StoreFailure(t *testing.T) {
	repo := &mockBookingRepository{
		insertFunc: func(context.Context, model.Booking) (any, error) {
			return nil, errors.New("duplicate key")
		},
	}
	pub := &recordingPublisher{}

	_, err := newService(repo, pub, Options{}).Create(context.Background(), model.Booking{})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperrors.AsAppError(err).StatusCode())
	assert.Empty(t, pub.messages)
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name       string
		deleted    int64
		wantEvents int
	}{
		{name: "existing", deleted: 1, wantEvents: 1},
		{name: "missing is zero count", deleted: 0, wantEvents: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockBookingRepository{
				deleteFunc: func(context.Context, string) (int64, error) { return tt.deleted, nil },
			}
			pub := &recordingPublisher{}

			result, err := newService(repo, pub, Options{}).Delete(context.Background(), primitive.NewObjectID().Hex())
			require.NoError(t, err)
			assert.True(t, result.Acknowledged)
			assert.Equal(t, tt.deleted, result.DeletedCount)
			assert.Len(t, pub.messages, tt.wantEvents)
		})
	}
}

func TestDelete_MalformedID(t *testing.T) {
	repo := &mockBookingRepository{
		deleteFunc: func(_ context.Context, id string) (int64, error) {
			return 0, bookingserrors.ErrInvalidID
		},
	}

	_, err := newService(repo, nil, Options{}).Delete(context.Background(), "nope")
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode())
	assert.Equal(t, "Internal server error", appErr.Message)
}

func TestUpdateStatus_Permissive(t *testing.T) {
	tests := []struct {
		name      string
		status    any
		wantEvent string
	}{
		{name: "any string", status: "confirm", wantEvent: `"status":"confirm"`},
		{name: "missing status stored as null", status: nil},
		{name: "number stored as sent", status: 5.0},
		{name: "object stored as sent", status: map[string]any{"code": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotStatus any
			var gotFrom []any
			repo := &mockBookingRepository{
				updateStatusFunc: func(_ context.Context, _ string, status any, from []any) (*model.UpdateResult, error) {
					gotStatus, gotFrom = status, from
					return &model.UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
				},
			}
			pub := &recordingPublisher{}

			result, err := newService(repo, pub, Options{}).UpdateStatus(context.Background(), "id", model.StatusUpdate{Status: tt.status})
			require.NoError(t, err)
			assert.Equal(t, int64(1), result.ModifiedCount)
			assert.Equal(t, tt.status, gotStatus)
			assert.Nil(t, gotFrom)
			require.Equal(t, []string{EventBookingStatusUpdated}, pub.eventTypes())
			if tt.wantEvent != "" {
				assert.Contains(t, string(pub.messages[0].Value), tt.wantEvent)
			} else {
				assert.NotContains(t, string(pub.messages[0].Value), `"status"`)
			}
		})
	}
}

func TestUpdateStatus_NoEffectNoEvent(t *testing.T) {
	repo := &mockBookingRepository{
		updateStatusFunc: func(context.Context, string, any, []any) (*model.UpdateResult, error) {
			return &model.UpdateResult{Acknowledged: true}, nil
		},
	}
	pub := &recordingPublisher{}

	result, err := newService(repo, pub, Options{}).UpdateStatus(context.Background(), "id", model.StatusUpdate{Status: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.MatchedCount)
	assert.Empty(t, pub.messages)
}

func TestUpdateStatus_Strict(t *testing.T) {
	id := primitive.NewObjectID().Hex()

	t.Run("unknown status rejected before the store", func(t *testing.T) {
		repo := &mockBookingRepository{}
		_, err := newService(repo, nil, Options{StrictStatusTransitions: true}).
			UpdateStatus(context.Background(), id, model.StatusUpdate{Status: "confirm"})
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, apperrors.AsAppError(err).StatusCode())
	})

	t.Run("non-string status rejected", func(t *testing.T) {
		repo := &mockBookingRepository{}
		_, err := newService(repo, nil, Options{StrictStatusTransitions: true}).
			UpdateStatus(context.Background(), id, model.StatusUpdate{Status: 5.0})
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, apperrors.AsAppError(err).StatusCode())
	})

	t.Run("missing status rejected", func(t *testing.T) {
		repo := &mockBookingRepository{}
		_, err := newService(repo, nil, Options{StrictStatusTransitions: true}).
			UpdateStatus(context.Background(), id, model.StatusUpdate{})
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, apperrors.AsAppError(err).StatusCode())
	})

	t.Run("allowed transition passes predecessors", func(t *testing.T) {
		var gotFrom []any
		repo := &mockBookingRepository{
			updateStatusFunc: func(_ context.Context, _ string, _ any, from []any) (*model.UpdateResult, error) {
				gotFrom = from
				return &model.UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
			},
		}
		_, err := newService(repo, nil, Options{StrictStatusTransitions: true}).
			UpdateStatus(context.Background(), id, model.StatusUpdate{Status: "completed"})
		require.NoError(t, err)
		assert.Contains(t, gotFrom, "confirmed")
		assert.NotContains(t, gotFrom, "pending")
	})

	t.Run("rejected transition is a conflict", func(t *testing.T) {
		repo := &mockBookingRepository{
			updateStatusFunc: func(context.Context, string, any, []any) (*model.UpdateResult, error) {
				return &model.UpdateResult{Acknowledged: true}, nil
			},
			findByIDFunc: func(context.Context, string) (model.Booking, error) {
				return model.Booking{"status": "cancelled"}, nil
			},
		}
		_, err := newService(repo, nil, Options{StrictStatusTransitions: true}).
			UpdateStatus(context.Background(), id, model.StatusUpdate{Status: "confirmed"})
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, apperrors.AsAppError(err).StatusCode())
		assert.ErrorIs(t, err, bookingserrors.ErrInvalidTransition)
	})

	t.Run("missing booking is a zero count", func(t *testing.T) {
		repo := &mockBookingRepository{
			updateStatusFunc: func(context.Context, string, any, []any) (*model.UpdateResult, error) {
				return &model.UpdateResult{Acknowledged: true}, nil
			},
			findByIDFunc: func(context.Context, string) (model.Booking, error) {
				return nil, bookingserrors.ErrNotFound
			},
		}
		result, err := newService(repo, nil, Options{StrictStatusTransitions: true}).
			UpdateStatus(context.Background(), id, model.StatusUpdate{Status: "confirmed"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.MatchedCount)
	})

	t.Run("cancel from anywhere", func(t *testing.T) {
		var gotFrom []any
		repo := &mockBookingRepository{
			updateStatusFunc: func(_ context.Context, _ string, _ any, from []any) (*model.UpdateResult, error) {
				gotFrom = from
				return &model.UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
			},
		}
		_, err := newService(repo, nil, Options{StrictStatusTransitions: true}).
			UpdateStatus(context.Background(), id, model.StatusUpdate{Status: "cancelled"})
		require.NoError(t, err)
		assert.Nil(t, gotFrom)
	})
}
