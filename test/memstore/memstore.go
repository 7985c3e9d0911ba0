// Package memstore holds in-memory stand-ins for the Mongo repositories and
// the event publisher, for tests that exercise the full HTTP stack.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	bookingserrors "cardoctor/internal/bookings/errors"
	catalogerrors "cardoctor/internal/catalog/errors"
	"cardoctor/pkg/kafka"
	"cardoctor/pkg/model"
	"cardoctor/pkg/query"
)

type ServiceStore struct {
	mu   sync.RWMutex
	docs []model.ServiceDocument
}

func NewServiceStore(docs ...model.ServiceDocument) *ServiceStore {
	s := &ServiceStore{}
	for _, doc := range docs {
		s.Add(doc)
	}
	return s
}

// Add stores doc, assigning an ObjectID when it has no _id.
func (s *ServiceStore) Add(doc model.ServiceDocument) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc = maps.Clone(doc)
	id, ok := doc["_id"].(primitive.ObjectID)
	if !ok {
		id = primitive.NewObjectID()
		doc["_id"] = id
	}
	s.docs = append(s.docs, doc)
	return id
}

func (s *ServiceStore) Find(_ context.Context, filter query.Filter, sort query.Sort) ([]model.ServiceDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ServiceDocument, 0)
	for _, doc := range s.docs {
		if filter.Matches(doc) {
			out = append(out, maps.Clone(doc))
		}
	}
	slices.SortStableFunc(out, func(a, b model.ServiceDocument) int {
		return sort.Compare(a, b)
	})
	return out, nil
}

func (s *ServiceStore) FindByID(_ context.Context, id string, projection query.Projection) (model.ServiceDocument, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", catalogerrors.ErrInvalidID, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.docs {
		if doc["_id"] == objectID {
			return projection.Apply(maps.Clone(doc)), nil
		}
	}
	return nil, catalogerrors.ErrNotFound
}

type BookingStore struct {
	mu   sync.RWMutex
	docs []model.Booking
}

func NewBookingStore() *BookingStore {
	return &BookingStore{}
}

func (s *BookingStore) Insert(_ context.Context, booking model.Booking) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := maps.Clone(booking)
	if doc == nil {
		doc = model.Booking{}
	}
	id, ok := doc[model.BookingFieldID]
	if !ok {
		id = primitive.NewObjectID()
		doc[model.BookingFieldID] = id
	}
	sameID := query.Where(query.Eq(model.BookingFieldID, id))
	for _, existing := range s.docs {
		if sameID.Matches(existing) {
			return nil, fmt.Errorf("duplicate key: %v", id)
		}
	}
	s.docs = append(s.docs, doc)
	return id, nil
}

func (s *BookingStore) Find(_ context.Context, filter query.Filter) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Booking, 0)
	for _, doc := range s.docs {
		if filter.Matches(doc) {
			out = append(out, maps.Clone(doc))
		}
	}
	return out, nil
}

func (s *BookingStore) FindByID(_ context.Context, id string) (model.Booking, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(objectID); i >= 0 {
		return maps.Clone(s.docs[i]), nil
	}
	return nil, bookingserrors.ErrNotFound
}

func (s *BookingStore) UpdateStatus(_ context.Context, id string, status any, from []any) (*model.UpdateResult, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &model.UpdateResult{Acknowledged: true}
	i := s.indexOf(objectID)
	if i < 0 {
		return result, nil
	}
	if len(from) > 0 && !query.Where(query.In(model.BookingFieldStatus, from...)).Matches(s.docs[i]) {
		return result, nil
	}
	result.MatchedCount = 1

	current, exists := s.docs[i][model.BookingFieldStatus]
	if !exists || !reflect.DeepEqual(current, status) {
		s.docs[i][model.BookingFieldStatus] = status
		result.ModifiedCount = 1
	}
	return result, nil
}

func (s *BookingStore) Delete(_ context.Context, id string) (int64, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(objectID)
	if i < 0 {
		return 0, nil
	}
	s.docs = slices.Delete(s.docs, i, i+1)
	return 1, nil
}

// Len reports how many bookings are stored.
func (s *BookingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *BookingStore) indexOf(id primitive.ObjectID) int {
	for i, doc := range s.docs {
		if doc[model.BookingFieldID] == id {
			return i
		}
	}
	return -1
}

// Publisher records every published message.
type Publisher struct {
	mu       sync.Mutex
	messages []kafka.Message
	closed   bool
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(_ context.Context, msg kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return kafka.ErrProducerClosed
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Publisher) Messages() []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.messages)
}

// EventTypes lists the event-type header of every message in publish order.
func (p *Publisher) EventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.messages))
	for _, msg := range p.messages {
		types = append(types, msg.EventType())
	}
	return types
}
