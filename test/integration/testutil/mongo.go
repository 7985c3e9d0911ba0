package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"cardoctor/pkg/config"
	"cardoctor/pkg/model"
)

const (
	DefaultDatabaseName = "carDoctorTest"
	ConnectionTimeout   = 10 * time.Second
)

// MongoHelper gives tests direct access to the database behind the server.
type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoHelper(t *testing.T, mongoURI, dbName string) *MongoHelper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(mongoURI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	return &MongoHelper{
		Client:   client,
		Database: client.Database(dbName),
	}
}

// Ping lets the helper back the readiness route.
func (m *MongoHelper) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, readpref.Primary())
}

func (m *MongoHelper) Close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("warning: failed to disconnect from MongoDB: %v", err)
	}
}

// CleanDatabase drops the database so each test starts from nothing.
func (m *MongoHelper) CleanDatabase(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Database.Drop(ctx); err != nil {
		t.Fatalf("failed to drop database %s: %v", m.Database.Name(), err)
	}
}

// SeedServices inserts catalog entries and returns their ids in order.
func (m *MongoHelper) SeedServices(t *testing.T, services ...model.ServiceDocument) []primitive.ObjectID {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	docs := make([]any, 0, len(services))
	for _, s := range services {
		docs = append(docs, s)
	}
	result, err := m.Database.Collection(config.ServicesCollection).InsertMany(ctx, docs)
	if err != nil {
		t.Fatalf("failed to seed services: %v", err)
	}

	ids := make([]primitive.ObjectID, 0, len(result.InsertedIDs))
	for _, id := range result.InsertedIDs {
		ids = append(ids, id.(primitive.ObjectID))
	}
	return ids
}

// FindBooking reads a booking straight from the collection.
func (m *MongoHelper) FindBooking(t *testing.T, id string) bson.M {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		t.Fatalf("invalid booking id %q: %v", id, err)
	}

	var doc bson.M
	err = m.Database.Collection(config.BookingsCollection).FindOne(ctx, bson.D{{Key: "_id", Value: objectID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to find booking %s: %v", id, err)
	}
	return doc
}

func (m *MongoHelper) CountDocuments(t *testing.T, collectionName string) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := m.Database.Collection(collectionName).CountDocuments(ctx, bson.D{})
	if err != nil {
		t.Fatalf("failed to count documents in %s: %v", collectionName, err)
	}
	return count
}
