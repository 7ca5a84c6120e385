package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	return startHubWith(t, nil)
}

func startHubWith(t *testing.T, rdb *redis.Client) *Hub {
	t.Helper()
	hub := NewHub(rdb, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func connect(hub *Hub, id string, userID uint, email string) *Client {
	c := NewClient(hub, nil, id, userID, email)
	hub.Register(c)
	return c
}

func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for %s", c.ID)
		return Envelope{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame for %s: %s", c.ID, frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DeliversOnlyToJoinedRooms(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()
	a := connect(hub, "a", 1, "a@x.com")
	b := connect(hub, "b", 2, "b@x.com")

	hub.Join(a, "room-1")
	require.NoError(t, hub.Publish(ctx, "room-1", []byte(`{"event":"x"}`)))

	assert.Equal(t, "x", recv(t, a).Event)
	assertSilent(t, b)

	hub.Leave(a, "room-1")
	require.NoError(t, hub.Publish(ctx, "room-1", []byte(`{"event":"y"}`)))
	assertSilent(t, a)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t)
	a := connect(hub, "a", 1, "a@x.com")
	hub.Join(a, "room-1")

	hub.Unregister(a)
	select {
	case _, ok := <-a.send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed")
	}

	// sending to a dropped client must not panic
	a.Send([]byte("late"))
	require.NoError(t, hub.Publish(context.Background(), "room-1", []byte(`{}`)))
}

func TestHub_SendConcurrentWithUnregister(t *testing.T) {
	hub := startHub(t)
	for i := 0; i < 100; i++ {
		c := connect(hub, "c", 1, "a@x.com")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Send([]byte(`{"event":"x"}`))
			}
		}()
		go func() {
			defer wg.Done()
			hub.Unregister(c)
		}()
		wg.Wait()
	}
}

func TestHub_JoinReportsDroppedClient(t *testing.T) {
	hub := startHub(t)
	a := connect(hub, "a", 1, "a@x.com")
	assert.True(t, hub.Join(a, "room-1"))

	hub.Unregister(a)
	assert.False(t, hub.Join(a, "room-1"))
}

func TestHub_FullBufferDropsClient(t *testing.T) {
	hub := startHub(t)
	a := connect(hub, "a", 1, "a@x.com")
	require.True(t, hub.Join(a, "room-1"))

	for i := 0; i < sendBufferSize+1; i++ {
		require.NoError(t, hub.Publish(context.Background(), "room-1", []byte(`{}`)))
	}
	require.Eventually(t, func() bool {
		return !hub.Join(a, "room-2")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RedisFanOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}
	hubA := startHubWith(t, newClient())
	hubB := startHubWith(t, newClient())
	require.Eventually(t, func() bool {
		return mr.PubSubNumPat() == 2
	}, 2*time.Second, 10*time.Millisecond)

	joined := connect(hubB, "joined", 2, "b@x.com")
	idle := connect(hubB, "idle", 3, "c@x.com")
	require.True(t, hubB.Join(joined, "group_7"))

	require.NoError(t, hubA.Publish(context.Background(), "group_7", []byte(`{"event":"receive_group_message"}`)))

	assert.Equal(t, EventReceiveGroup, recv(t, joined).Event)
	assertSilent(t, idle)
}
