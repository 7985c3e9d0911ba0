package model

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	ServiceFieldTitle     = "title"
	ServiceFieldPrice     = "price"
	ServiceFieldServiceID = "service_id"
	ServiceFieldImg       = "img"
)

// Service is the projected view of a catalog entry returned by GET /services/:id.
type Service struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	Title     string             `json:"title" bson:"title"`
	Price     float64            `json:"price" bson:"price"`
	ServiceID string             `json:"service_id" bson:"service_id"`
	Img       string             `json:"img" bson:"img"`
}

// ServiceDocument is a full catalog entry as stored. The list endpoint
// returns documents unprojected.
type ServiceDocument map[string]any
