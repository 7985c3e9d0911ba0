package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"cardoctor/internal/auth"
	bookingserrors "cardoctor/internal/bookings/errors"
	"cardoctor/internal/bookings/repository"
	"cardoctor/internal/bookings/validator"
	apperrors "cardoctor/pkg/errors"
	"cardoctor/pkg/kafka"
	"cardoctor/pkg/logger"
	"cardoctor/pkg/middleware"
	"cardoctor/pkg/model"
	"cardoctor/pkg/query"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingStatusUpdated = "booking.status_updated"
	EventBookingDeleted       = "booking.deleted"

	eventSource        = "cardoctor"
	eventSchemaVersion = "1"
	eventTimeout       = 2 * time.Second

	msgForbiddenAccess = "Forbidden access"
	msgInternal        = "Internal server error"
)

type BookingService interface {
	List(ctx context.Context, claims auth.Claims, email *string) ([]model.Booking, error)
	Create(ctx context.Context, booking model.Booking) (*model.InsertResult, error)
	Delete(ctx context.Context, id string) (*model.DeleteResult, error)
	UpdateStatus(ctx context.Context, id string, update model.StatusUpdate) (*model.UpdateResult, error)
}

type Options struct {
	// StrictOwnership answers an ownership mismatch with 403 instead of a 200
	// error body.
	StrictOwnership bool
	// StrictStatusTransitions restricts status to the known values and
	// enforces the transition graph.
	StrictStatusTransitions bool
}

// BookingEvent is the payload published for every booking change.
type BookingEvent struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	Status     *string   `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type bookingService struct {
	repo      repository.BookingRepository
	validator *validator.BookingValidator
	publisher kafka.Publisher
	opts      Options
	log       *logger.Logger
}

func NewBookingService(
	repo repository.BookingRepository,
	validator *validator.BookingValidator,
	publisher kafka.Publisher,
	opts Options,
	log *logger.Logger,
) BookingService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	return &bookingService{
		repo:      repo,
		validator: validator,
		publisher: publisher,
		opts:      opts,
		log:       log,
	}
}

// List returns the bookings for email. The token's email claim must equal
// the requested email, where an absent claim only matches an absent query.
func (s *bookingService) List(ctx context.Context, claims auth.Claims, email *string) ([]model.Booking, error) {
	if !ownsQuery(claims, email) {
		s.log.Warn("Booking list rejected",
			"request_id", middleware.RequestIDFrom(ctx),
			"reason", bookingserrors.ErrOwnershipMismatch.Error(),
		)
		status := http.StatusOK
		if s.opts.StrictOwnership {
			status = http.StatusForbidden
		}
		return nil, apperrors.Wrap(bookingserrors.ErrOwnershipMismatch, apperrors.CodeForbidden, msgForbiddenAccess, status)
	}

	filter := query.Where()
	if email != nil && *email != "" {
		filter = filter.And(query.Eq(model.BookingFieldEmail, *email))
	}

	bookings, err := s.repo.Find(ctx, filter)
	if err != nil {
		s.log.Error("Failed to list bookings", "error", err)
		return nil, apperrors.Internal(msgInternal, err)
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	return bookings, nil
}

func ownsQuery(claims auth.Claims, email *string) bool {
	if !claims.HasEmail() {
		return email == nil
	}
	claimEmail, ok := claims.Email()
	return ok && email != nil && claimEmail == *email
}

// Create stores the booking exactly as received.
func (s *bookingService) Create(ctx context.Context, booking model.Booking) (*model.InsertResult, error) {
	insertedID, err := s.repo.Insert(ctx, booking)
	if err != nil {
		s.log.Error("Failed to create booking", "error", err)
		return nil, apperrors.Internal(msgInternal, err)
	}

	id := idString(insertedID)
	s.log.Info("Booking created successfully", "id", id)

	var status *string
	if st, ok := booking.Status(); ok {
		status = &st
	}
	s.publish(ctx, EventBookingCreated, id, status)

	return &model.InsertResult{
		Acknowledged: true,
		InsertedID:   insertedID,
	}, nil
}

// Delete removes the booking. A missing booking is reported as a zero count.
func (s *bookingService) Delete(ctx context.Context, id string) (*model.DeleteResult, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.log.Error("Failed to delete booking", "id", id, "error", err)
		return nil, apperrors.Internal(msgInternal, err)
	}

	if deleted > 0 {
		s.log.Info("Booking deleted successfully", "id", id)
		s.publish(ctx, EventBookingDeleted, id, nil)
	}

	return &model.DeleteResult{
		Acknowledged: true,
		DeletedCount: deleted,
	}, nil
}

// UpdateStatus sets only the status field, storing whatever JSON value was
// sent. A missing status is stored as null unless strict transitions are
// enabled.
func (s *bookingService) UpdateStatus(ctx context.Context, id string, update model.StatusUpdate) (*model.UpdateResult, error) {
	target, isString := update.StatusString()

	var from []any
	if s.opts.StrictStatusTransitions {
		if err := s.validator.ValidateStatusUpdate(update); err != nil {
			s.log.Warn("Booking status validation failed", "id", id, "error", err)
			return nil, apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
		}
		from = s.validator.AllowedPredecessors(model.BookingStatus(target))
	}

	result, err := s.repo.UpdateStatus(ctx, id, update.Status, from)
	if err != nil {
		s.log.Error("Failed to update booking status", "id", id, "error", err)
		return nil, apperrors.Internal(msgInternal, err)
	}

	if result.MatchedCount == 0 && len(from) > 0 {
		if err := s.explainUnmatched(ctx, id, target); err != nil {
			return nil, err
		}
	}

	if result.ModifiedCount > 0 {
		s.log.Info("Booking status updated successfully", "id", id)
		var status *string
		if isString {
			status = &target
		}
		s.publish(ctx, EventBookingStatusUpdated, id, status)
	}

	return result, nil
}

// explainUnmatched tells a missing booking, which is reported as a zero
// count, from one whose current status does not allow the move.
func (s *bookingService) explainUnmatched(ctx context.Context, id, target string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil
		}
		s.log.Error("Failed to load booking", "id", id, "error", err)
		return apperrors.Internal(msgInternal, err)
	}

	current, _ := existing.Status()
	return apperrors.Conflict(
		fmt.Sprintf("Cannot change booking status from %q to %q", current, target),
		bookingserrors.ErrInvalidTransition,
	)
}

func (s *bookingService) publish(ctx context.Context, eventType, bookingID string, status *string) {
	if bookingID == "" {
		return
	}

	msg, err := kafka.NewMessage().
		WithKey(bookingID).
		WithEventType(eventType).
		WithSource(eventSource).
		WithSchemaVersion(eventSchemaVersion).
		WithCorrelationID(middleware.RequestIDFrom(ctx)).
		WithHeader(kafka.HeaderContentType, "application/json").
		WithValue(BookingEvent{
			Type:       eventType,
			BookingID:  bookingID,
			Status:     status,
			OccurredAt: time.Now().UTC(),
		}).
		Build()
	if err != nil {
		s.log.Error("Failed to build booking event", "event_type", eventType, "id", bookingID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		var kafkaErr *kafka.KafkaError
		if errors.As(err, &kafkaErr) && kafkaErr.IsTransient() {
			s.log.Warn("Booking event not published, broker unavailable", "event_type", eventType, "id", bookingID, "error", err)
			return
		}
		s.log.Error("Failed to publish booking event", "event_type", eventType, "id", bookingID, "error", err)
	}
}

func idString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
