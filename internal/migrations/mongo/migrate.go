package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cardoctor/internal/migrations/mongo/validators"
	"cardoctor/pkg/config"
	"cardoctor/pkg/logger"
)

// Schema violations are logged by the server, not rejected.
const validationAction = "warn"

var (
	ServicesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "title", Value: 1}}},
		{Keys: bson.D{{Key: "price", Value: 1}}},
	}

	BookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
)

type collectionDef struct {
	name      string
	indexes   []mongo.IndexModel
	validator bson.M
}

func definitions() []collectionDef {
	return []collectionDef{
		{name: config.ServicesCollection, indexes: ServicesIndexes, validator: validators.ServiceValidator},
		{name: config.BookingsCollection, indexes: BookingsIndexes, validator: validators.BookingValidator},
	}
}

// RunMigration creates the collections with their schema validators and
// indexes. It is safe to run repeatedly.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for _, def := range definitions() {
		if err := ensureCollection(ctx, db, def.name, def.validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.name, err)
		}
		if err := ensureIndexes(ctx, db, def.name, def.indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().
			SetValidator(validator).
			SetValidationAction(validationAction)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationAction", Value: validationAction},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
