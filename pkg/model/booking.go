package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	BookingFieldID     = "_id"
	BookingFieldEmail  = "email"
	BookingFieldStatus = "status"
)

// Booking is a client-defined document. Only the owner email and the status
// carry meaning on the server; every other field is stored as received.
type Booking map[string]any

// Email returns the owner email when it is present and a string.
func (b Booking) Email() (string, bool) {
	email, ok := b[BookingFieldEmail].(string)
	return email, ok
}

func (b Booking) Status() (string, bool) {
	status, ok := b[BookingFieldStatus].(string)
	return status, ok
}

// ID returns the hex form of the booking's ObjectID, or the raw value when a
// client supplied its own string _id.
func (b Booking) ID() string {
	switch id := b[BookingFieldID].(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return ""
	}
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// StatusUpdate is the PATCH /bookings/:id body. Status is stored as decoded,
// whatever its JSON type. A missing status is stored as null.
type StatusUpdate struct {
	Status any `json:"status"`
}

// StatusString reports the status when it is a JSON string.
func (u StatusUpdate) StatusString() (string, bool) {
	s, ok := u.Status.(string)
	return s, ok
}
