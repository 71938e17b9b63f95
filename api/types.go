package api

import (
	"context"

	"github.com/aka-azad/task-sorter-server/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	NextOrderIndex(ctx context.Context, userID, category string) (int, error)
	InsertTask(ctx context.Context, t domain.Task) (domain.InsertResult, error)
	ReplaceTaskFields(ctx context.Context, id string, t domain.Task) error
	DeleteTask(ctx context.Context, id string) (domain.DeleteResult, error)
	BulkReorder(ctx context.Context, positions []domain.TaskPosition) error
	UpsertUser(ctx context.Context, doc map[string]any) (domain.UpsertResult, error)
}

// TaskNotFoundError is returned by the store when an identifier does not
// resolve to a record.
type TaskNotFoundError interface {
	error
	TaskNotFound()
}

// InvalidTaskIDError is returned by the store when an identifier is not a
// syntactically valid object id.
type InvalidTaskIDError interface {
	error
	InvalidTaskID()
}

// Authenticator issues identity tokens and extracts the identity from
// Authorization headers.
type Authenticator interface {
	IssueToken(email string) (string, error)
	EmailFromAuthHeader(h string) (string, error)
}

// Notifier fans a change event out to currently connected real-time clients.
// Delivery is best-effort; callers never wait on it for correctness.
type Notifier interface {
	Broadcast(ev domain.ChangeEvent)
}
