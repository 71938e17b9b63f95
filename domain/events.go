package domain

const (
	TaskAdded      = "task-added"
	TaskUpdated    = "task-updated"
	TaskDeleted    = "task-deleted"
	TasksReordered = "tasks-reordered"
)

// ChangeEvent is the ephemeral notification pushed to real-time clients after
// a successful mutation. It is never stored and never retried; a client not
// connected at broadcast time simply misses it.
type ChangeEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewTaskAdded carries the created record as it was serialized before
// insertion, so the payload has no store-assigned id.
func NewTaskAdded(t Task) ChangeEvent {
	return ChangeEvent{Type: TaskAdded, Payload: t}
}

func NewTaskUpdated(t Task) ChangeEvent {
	return ChangeEvent{Type: TaskUpdated, Payload: t}
}

func NewTaskDeleted(id string) ChangeEvent {
	return ChangeEvent{Type: TaskDeleted, Payload: id}
}

func NewTasksReordered(positions []TaskPosition) ChangeEvent {
	return ChangeEvent{Type: TasksReordered, Payload: positions}
}
