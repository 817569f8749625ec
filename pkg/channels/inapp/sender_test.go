package inapp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type recordingPublisher struct {
	channel string
	payload []byte
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	p.channel = channel
	p.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func message() notifications.Message {
	return notifications.Message{
		NotificationID: "n1",
		UserID:         "u1",
		Type:           "match",
		Template:       "match_found",
		Channel:        notifications.ChannelInApp,
		Priority:       notifications.PriorityHigh,
		Silent:         true,
		Content:        notifications.Content{Subject: "New match", Body: "Ana wants to swap skills"},
	}
}

func TestSender_Send(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, WithPrefix("test:inapp"))
	s.now = func() time.Time { return testNow }

	require.NoError(t, s.Send(context.Background(), message()))
	assert.Equal(t, "test:inapp:u1", pub.channel)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.payload, &ev))
	assert.Equal(t, Event{
		ID: "n1", UserID: "u1", Type: "match", Template: "match_found",
		Priority: notifications.PriorityHigh, Silent: true,
		Subject: "New match", Body: "Ana wants to swap skills", SentAt: testNow,
	}, ev)
}

func TestSender_Errors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connection refused")}
	err := New(pub).Send(context.Background(), message())
	require.Error(t, err)
	assert.False(t, notifications.IsPermanent(err))

	wrong := message()
	wrong.Channel = notifications.ChannelPush
	assert.True(t, notifications.IsPermanent(New(pub).Send(context.Background(), wrong)))
}

func TestSender_Subscribe(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	prefix := "test:inapp:" + uuid.NewString()
	sub := Subscribe(ctx, client, prefix, "u1")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, New(client, WithPrefix(prefix)).Send(ctx, message()))

	select {
	case m := <-sub.Channel():
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &ev))
		assert.Equal(t, "n1", ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("in-app event not received")
	}
}
