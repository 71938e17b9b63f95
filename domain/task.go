package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// Task represents a single board item. Within one (userId, category) pair the
// orderIndex values define the display order; the store does not enforce
// uniqueness or contiguity of indices.
//
// ID is a pointer so a record that has not been stored yet serializes
// without an _id at all; a zero-valued ObjectID would not be dropped by
// omitempty.
type Task struct {
	ID          *primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Title       string              `bson:"title" json:"title"`
	Category    string              `bson:"category" json:"category"`
	UserID      string              `bson:"userId" json:"userId"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	Timestamp   string              `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	Email       string              `bson:"email,omitempty" json:"email,omitempty"`
	OrderIndex  int                 `bson:"orderIndex" json:"orderIndex"`
	DueDate     string              `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
}

// TaskPosition is one entry of a bulk reorder: the task to move and the
// category/index it lands on.
type TaskPosition struct {
	ID         string `json:"_id"`
	OrderIndex int    `json:"orderIndex"`
	Category   string `json:"category"`
}
