package realtime

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/aka-azad/task-sorter-server/domain"
)

const publishTimeout = 5 * time.Second

// Bridge replicates change events across instances through a Redis pub/sub
// channel: local broadcasts are published, and events published by peers are
// re-broadcast to this instance's connections. Events carry the origin
// instance id so a publisher skips its own messages.
type Bridge struct {
	hub     *Hub
	rc      *redis.Client
	channel string
	origin  string
	logger  *log.Logger
}

type envelope struct {
	Origin string             `json:"origin"`
	Event  domain.ChangeEvent `json:"event"`
}

// NewBridge wraps the hub with cross-instance replication.
func NewBridge(hub *Hub, rc *redis.Client, channel string, logger *log.Logger) *Bridge {
	return &Bridge{
		hub:     hub,
		rc:      rc,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Broadcast fans the event out locally and publishes it for peer instances.
// Publish failures are logged and otherwise ignored; the local fan-out has
// already happened and the HTTP response path never depends on delivery.
func (b *Bridge) Broadcast(ev domain.ChangeEvent) {
	b.hub.Broadcast(ev)

	data, err := sonic.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		b.logger.Errorf("marshal change event envelope: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.rc.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Errorf("publish change event: %v", err)
	}
}

// Run subscribes to the channel and re-broadcasts peer events until the
// context is canceled, reconnecting when the subscription drops.
func (b *Bridge) Run(ctx context.Context) {
	for {
		sub := b.rc.Subscribe(ctx, b.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				b.handle(msg.Payload)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (b *Bridge) handle(payload string) {
	var env envelope
	if err := sonic.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Errorf("unable to parse change event: %v", err)
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.hub.Broadcast(env.Event)
}
