package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/aka-azad/task-sorter-server/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	NextOrderIndex(ctx context.Context, userID, category string) (int, error)
	InsertTask(ctx context.Context, t domain.Task) (domain.InsertResult, error)
	ReplaceTaskFields(ctx context.Context, id string, t domain.Task) error
	DeleteTask(ctx context.Context, id string) (domain.DeleteResult, error)
	BulkReorder(ctx context.Context, positions []domain.TaskPosition) error
	UpsertUser(ctx context.Context, doc map[string]any) (domain.UpsertResult, error)
}

// Cache wraps a Storage instance with Redis-backed caching of per-user task
// lists. Reads fall through to the backing store on any redis failure;
// mutations evict the affected entries after the write succeeds.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasks(ctx, userID); ok {
		return tasks, nil
	}
	tasks, err := c.base.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.storeTasks(ctx, userID, tasks)
	return tasks, nil
}

// NextOrderIndex always reads the backing store; the ordering assigner must
// see the current maximum, not a cached list.
func (c *Cache) NextOrderIndex(ctx context.Context, userID, category string) (int, error) {
	return c.base.NextOrderIndex(ctx, userID, category)
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) (domain.InsertResult, error) {
	res, err := c.base.InsertTask(ctx, t)
	if err != nil {
		return domain.InsertResult{}, err
	}
	c.evict(ctx, t.UserID)
	return res, nil
}

func (c *Cache) ReplaceTaskFields(ctx context.Context, id string, t domain.Task) error {
	if err := c.base.ReplaceTaskFields(ctx, id, t); err != nil {
		return err
	}
	c.evict(ctx, t.UserID)
	return nil
}

// DeleteTask and BulkReorder only know task identifiers, not owners, so they
// drop every cached list.
func (c *Cache) DeleteTask(ctx context.Context, id string) (domain.DeleteResult, error) {
	res, err := c.base.DeleteTask(ctx, id)
	if err != nil {
		return domain.DeleteResult{}, err
	}
	c.evictAll(ctx)
	return res, nil
}

func (c *Cache) BulkReorder(ctx context.Context, positions []domain.TaskPosition) error {
	if err := c.base.BulkReorder(ctx, positions); err != nil {
		return err
	}
	c.evictAll(ctx)
	return nil
}

func (c *Cache) UpsertUser(ctx context.Context, doc map[string]any) (domain.UpsertResult, error) {
	return c.base.UpsertUser(ctx, doc)
}

func (c *Cache) loadTasks(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, userID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
}

func (c *Cache) evictAll(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, tasksCacheKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.redis.Del(ctx, iter.Val()).Err()
	}
}

const tasksCacheKeyPrefix = "tasks:"

func tasksCacheKey(userID string) string {
	return tasksCacheKeyPrefix + userID
}
