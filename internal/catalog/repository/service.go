package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	catalogerrors "cardoctor/internal/catalog/errors"
	"cardoctor/pkg/config"
	mongodb "cardoctor/pkg/db/mongo"
	"cardoctor/pkg/model"
	"cardoctor/pkg/query"
)

type ServiceRepository interface {
	Find(ctx context.Context, filter query.Filter, sort query.Sort) ([]model.ServiceDocument, error)
	FindByID(ctx context.Context, id string, projection query.Projection) (model.ServiceDocument, error)
}

type mongoServiceRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoServiceRepository(db *mongo.Database, timeout time.Duration) ServiceRepository {
	return &mongoServiceRepository{
		collection: db.Collection(config.ServicesCollection),
		timeout:    timeout,
	}
}

func (r *mongoServiceRepository) Find(ctx context.Context, filter query.Filter, sort query.Sort) ([]model.ServiceDocument, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find()
	if len(sort) > 0 {
		opts.SetSort(sort.BSON())
	}

	cursor, err := r.collection.Find(ctx, filter.BSON(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find services: %w", err)
	}
	defer cursor.Close(ctx)

	services := make([]model.ServiceDocument, 0)
	if err := cursor.All(ctx, &services); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return services, nil
}

func (r *mongoServiceRepository) FindByID(ctx context.Context, id string, projection query.Projection) (model.ServiceDocument, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.timeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", catalogerrors.ErrInvalidID, id)
	}

	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(projection.BSON())
	}

	var service model.ServiceDocument
	err = r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: objectID}}, opts).Decode(&service)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, catalogerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find service: %w", err)
	}
	return service, nil
}
