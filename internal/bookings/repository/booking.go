package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "cardoctor/internal/bookings/errors"
	"cardoctor/pkg/config"
	mongodb "cardoctor/pkg/db/mongo"
	"cardoctor/pkg/model"
	"cardoctor/pkg/query"
)

type BookingRepository interface {
	Insert(ctx context.Context, booking model.Booking) (any, error)
	Find(ctx context.Context, filter query.Filter) ([]model.Booking, error)
	FindByID(ctx context.Context, id string) (model.Booking, error)
	// UpdateStatus sets status on the booking with id, nil meaning null. When from is non-empty
	// the update only applies if the current status is one of from.
	UpdateStatus(ctx context.Context, id string, status any, from []any) (*model.UpdateResult, error)
	Delete(ctx context.Context, id string) (int64, error)
}

type mongoBookingRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoBookingRepository(db *mongo.Database, timeout time.Duration) BookingRepository {
	return &mongoBookingRepository{
		collection: db.Collection(config.BookingsCollection),
		timeout:    timeout,
	}
}

func (r *mongoBookingRepository) Insert(ctx context.Context, booking model.Booking) (any, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}
	return result.InsertedID, nil
}

func (r *mongoBookingRepository) Find(ctx context.Context, filter query.Filter) ([]model.Booking, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter.BSON())
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := make([]model.Booking, 0)
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (model.Booking, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.timeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, bson.D{{Key: model.BookingFieldID, Value: objectID}}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return booking, nil
}

func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, id string, status any, from []any) (*model.UpdateResult, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.timeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := query.Where(query.Eq(model.BookingFieldID, objectID))
	if len(from) > 0 {
		filter = filter.And(query.In(model.BookingFieldStatus, from...))
	}

	update := bson.D{{Key: "$set", Value: bson.D{{Key: model.BookingFieldStatus, Value: status}}}}

	result, err := r.collection.UpdateOne(ctx, filter.BSON(), update)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	return &model.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  result.MatchedCount,
		ModifiedCount: result.ModifiedCount,
		UpsertedCount: result.UpsertedCount,
		UpsertedID:    result.UpsertedID,
	}, nil
}

func (r *mongoBookingRepository) Delete(ctx context.Context, id string) (int64, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.timeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.D{{Key: model.BookingFieldID, Value: objectID}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete booking: %w", err)
	}
	return result.DeletedCount, nil
}
