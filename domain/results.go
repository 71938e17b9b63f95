package domain

// InsertResult acknowledges a task insertion.
type InsertResult struct {
	InsertedID string `json:"insertedId"`
}

// DeleteResult acknowledges a task deletion.
type DeleteResult struct {
	DeletedCount int64 `json:"deletedCount"`
}

// UpsertResult acknowledges a user upsert. InsertedID is set on first sight
// of the email, the counts on every later sign-in.
type UpsertResult struct {
	InsertedID    string `json:"insertedId,omitempty"`
	MatchedCount  int64  `json:"matchedCount,omitempty"`
	ModifiedCount int64  `json:"modifiedCount,omitempty"`
}
