package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/aka-azad/task-sorter-server/domain"
)

func newTestBridge(t *testing.T, hub *Hub) (*Bridge, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewBridge(hub, rc, "task-change-events", log.New()), rc
}

func TestBridgeBroadcastPublishesEnvelope(t *testing.T) {
	hub := NewHub(log.New(), "")
	bridge, rc := newTestBridge(t, hub)

	ctx := context.Background()
	sub := rc.Subscribe(ctx, "task-change-events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bridge.Broadcast(domain.NewTaskDeleted("abc"))

	msg, err := sub.ReceiveTimeout(ctx, time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	payload, ok := msg.(*redis.Message)
	if !ok {
		t.Fatalf("unexpected message type %T", msg)
	}
	var env envelope
	if err := sonic.Unmarshal([]byte(payload.Payload), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Origin != bridge.origin {
		t.Fatalf("expected publisher origin %q, got %q", bridge.origin, env.Origin)
	}
	if env.Event.Type != domain.TaskDeleted || env.Event.Payload != "abc" {
		t.Fatalf("unexpected event: %#v", env.Event)
	}
}

func TestBridgeRebroadcastsPeerEvents(t *testing.T) {
	hub := NewHub(log.New(), "")
	bridge, rc := newTestBridge(t, hub)
	srv := newTestServer(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	client := dial(t, srv, "")
	waitForCount(t, hub, 1)
	waitForSubscribers(t, rc, "task-change-events")

	peer := envelope{Origin: "some-other-instance", Event: domain.NewTaskDeleted("from-peer")}
	data, err := sonic.Marshal(peer)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := rc.Publish(ctx, "task-change-events", data).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ev := readEvent(t, client)
	if ev.Type != domain.TaskDeleted || ev.Payload != "from-peer" {
		t.Fatalf("unexpected event: %#v", ev)
	}
}

func TestBridgeSkipsOwnPublishedEvents(t *testing.T) {
	hub := NewHub(log.New(), "")
	bridge, rc := newTestBridge(t, hub)
	srv := newTestServer(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	client := dial(t, srv, "")
	waitForCount(t, hub, 1)
	waitForSubscribers(t, rc, "task-change-events")

	bridge.Broadcast(domain.NewTaskDeleted("once"))

	// The local fan-out delivers the event exactly once; the loopback copy
	// from pub/sub must be skipped.
	if ev := readEvent(t, client); ev.Payload != "once" {
		t.Fatalf("unexpected event: %#v", ev)
	}
	_ = client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := client.ReadMessage(); err == nil {
		t.Fatalf("expected no duplicate delivery, got %s", data)
	}
}

func TestBridgeIgnoresMalformedPayloads(t *testing.T) {
	hub := NewHub(log.New(), "")
	bridge, rc := newTestBridge(t, hub)
	srv := newTestServer(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	client := dial(t, srv, "")
	waitForCount(t, hub, 1)
	waitForSubscribers(t, rc, "task-change-events")

	if err := rc.Publish(ctx, "task-change-events", "not-json").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	peer := envelope{Origin: "peer", Event: domain.NewTaskDeleted("after-garbage")}
	data, _ := sonic.Marshal(peer)
	if err := rc.Publish(ctx, "task-change-events", data).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if ev := readEvent(t, client); ev.Payload != "after-garbage" {
		t.Fatalf("expected the loop to survive garbage, got %#v", ev)
	}
}

func waitForSubscribers(t *testing.T, rc *redis.Client, channel string) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(time.Second)
	for {
		counts, err := rc.PubSubNumSub(ctx, channel).Result()
		if err == nil && counts[channel] > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no subscriber on %s", channel)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
