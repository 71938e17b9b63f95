package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aka-azad/task-sorter-server/domain"
)

const connectTimeout = 10 * time.Second

// NotFoundError reports that an identifier did not resolve to a task.
type NotFoundError struct{ ID string }

func (e NotFoundError) Error() string { return fmt.Sprintf("task %s not found", e.ID) }
func (NotFoundError) TaskNotFound()   {}

// InvalidIDError reports a syntactically invalid task identifier.
type InvalidIDError struct{ ID string }

func (e InvalidIDError) Error() string { return fmt.Sprintf("invalid task id %q", e.ID) }
func (InvalidIDError) InvalidTaskID()  {}

// Storage provides access to the task and user collections.
type Storage struct {
	client *mongo.Client
	tasks  *mongo.Collection
	users  *mongo.Collection
}

// New connects to the document store and binds the two collections.
func New(ctx context.Context, uri, dbName string) (*Storage, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1).
		SetStrict(true).
		SetDeprecationErrors(true)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	return &Storage{
		client: client,
		tasks:  db.Collection("tasks"),
		users:  db.Collection("users"),
	}, nil
}

// Ping verifies the connection at startup.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close releases the underlying client.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// FetchTasks retrieves all tasks owned by the provided user.
func (s *Storage) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	cur, err := s.tasks.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	tasks := []domain.Task{}
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// NextOrderIndex computes the insertion position for a new task within the
// (userID, category) partition: highest existing index plus one, or zero for
// an empty partition. The read and the insertion that follows are not wrapped
// in a transaction, so two concurrent creations in one partition may receive
// the same index.
func (s *Storage) NextOrderIndex(ctx context.Context, userID, category string) (int, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "orderIndex", Value: -1}})
	var last domain.Task
	err := s.tasks.FindOne(ctx, bson.M{"userId": userID, "category": category}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.OrderIndex + 1, nil
}

// InsertTask persists a new task and returns the assigned identifier.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) (domain.InsertResult, error) {
	res, err := s.tasks.InsertOne(ctx, t)
	if err != nil {
		return domain.InsertResult{}, err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return domain.InsertResult{}, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return domain.InsertResult{InsertedID: oid.Hex()}, nil
}

// ReplaceTaskFields overwrites the full task field set on the matching
// record. Fields the caller left empty are written back empty; this is a
// full replace, not a partial patch.
func (s *Storage) ReplaceTaskFields(ctx context.Context, id string, t domain.Task) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return InvalidIDError{ID: id}
	}
	update := bson.M{"$set": bson.M{
		"title":       t.Title,
		"category":    t.Category,
		"userId":      t.UserID,
		"description": t.Description,
		"timestamp":   t.Timestamp,
		"email":       t.Email,
		"orderIndex":  t.OrderIndex,
		"dueDate":     t.DueDate,
	}}
	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return NotFoundError{ID: id}
	}
	return nil
}

// DeleteTask physically removes the record with the given identifier.
func (s *Storage) DeleteTask(ctx context.Context, id string) (domain.DeleteResult, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.DeleteResult{}, InvalidIDError{ID: id}
	}
	err = s.tasks.FindOne(ctx, bson.M{"_id": oid}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.DeleteResult{}, NotFoundError{ID: id}
	}
	if err != nil {
		return domain.DeleteResult{}, err
	}
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return domain.DeleteResult{}, err
	}
	return domain.DeleteResult{DeletedCount: res.DeletedCount}, nil
}

// BulkReorder applies all position updates as one batched write. The batch is
// not atomic across documents; it reports only aggregate success or failure.
func (s *Storage) BulkReorder(ctx context.Context, positions []domain.TaskPosition) error {
	if len(positions) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(positions))
	for _, p := range positions {
		oid, err := primitive.ObjectIDFromHex(p.ID)
		if err != nil {
			return fmt.Errorf("reorder task %q: %w", p.ID, err)
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": oid}).
			SetUpdate(bson.M{"$set": bson.M{"orderIndex": p.OrderIndex, "category": p.Category}}))
	}
	_, err := s.tasks.BulkWrite(ctx, models)
	return err
}

// UpsertUser stores the credential document keyed by email: the first sight
// of an email inserts the document with a server-side creation timestamp,
// every later sight only refreshes the last sign-in field.
func (s *Storage) UpsertUser(ctx context.Context, doc map[string]any) (domain.UpsertResult, error) {
	email, _ := doc["email"].(string)
	filter := bson.M{"email": email}

	err := s.users.FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		doc["userCreated"] = time.Now().UTC().Format(time.RFC3339)
		res, insertErr := s.users.InsertOne(ctx, doc)
		if insertErr != nil {
			return domain.UpsertResult{}, insertErr
		}
		out := domain.UpsertResult{}
		if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
			out.InsertedID = oid.Hex()
		}
		return out, nil
	}
	if err != nil {
		return domain.UpsertResult{}, err
	}

	res, err := s.users.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"lastSignIn": doc["lastSignIn"]}})
	if err != nil {
		return domain.UpsertResult{}, err
	}
	return domain.UpsertResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount}, nil
}
