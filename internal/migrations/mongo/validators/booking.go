package validators

import "go.mongodb.org/mongo-driver/bson"

// BookingValidator describes the fields the server reads. Every other field
// is client-defined and left open.
var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"additionalProperties": true,
		"properties": bson.M{
			"email": bson.M{
				"bsonType": "string",
			},
			"status": bson.M{
				"bsonType": []string{"string", "null"},
			},
		},
	},
}
