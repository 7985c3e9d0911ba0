package validators

import "go.mongodb.org/mongo-driver/bson"

var ServiceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"additionalProperties": true,
		"properties": bson.M{
			"title": bson.M{
				"bsonType": "string",
			},
			"price": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
			},
			"service_id": bson.M{
				"bsonType": "string",
			},
			"img": bson.M{
				"bsonType": "string",
			},
		},
	},
}
