package model

// Write acknowledgments keep the field names MongoDB drivers report so
// existing clients can keep reading insertedId, deletedCount and friends.

type InsertResult struct {
	Acknowledged bool `json:"acknowledged"`
	InsertedID   any  `json:"insertedId"`
}

type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

type UpdateResult struct {
	Acknowledged  bool  `json:"acknowledged"`
	ModifiedCount int64 `json:"modifiedCount"`
	UpsertedID    any   `json:"upsertedId"`
	UpsertedCount int64 `json:"upsertedCount"`
	MatchedCount  int64 `json:"matchedCount"`
}
