package services

import (
	"context"
	"testing"

	"loop-backend/models"
	"loop-backend/telemetry"
	"loop-backend/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAsRead_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	reads := NewReadTracker(env.db, metrics)
	a := env.user(t, "a@x.com")
	b := env.user(t, "b@x.com")
	sent := env.send(t, a, "b@x.com", "hi")

	require.NoError(t, reads.MarkAsRead(ctx, b.ID, sent.Message.ID))
	require.NoError(t, reads.MarkAsRead(ctx, b.ID, sent.Message.ID))

	var n int64
	require.NoError(t, env.db.Model(&models.MessageRead{}).Where("message_id = ?", sent.Message.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReadMarkers))

	seen, err := reads.Seen(ctx, sent.Message.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMarkAsRead_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com")
	env.user(t, "b@x.com")
	sent := env.send(t, a, "b@x.com", "hi")

	err := env.reads.MarkAsRead(ctx, a.ID, sent.Message.ID)
	assert.Equal(t, utils.KindUnauthorized, utils.KindOf(err))

	err = env.reads.MarkAsRead(ctx, a.ID, 9999)
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))
}

func TestUnreadCount_TracksMarkers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com")
	b := env.user(t, "b@x.com")

	first := env.send(t, b, "a@x.com", "one")
	env.send(t, b, "a@x.com", "two")
	env.send(t, a, "b@x.com", "mine")

	n, err := env.reads.UnreadCount(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, env.reads.MarkAsRead(ctx, a.ID, first.Message.ID))
	n, err = env.reads.UnreadCount(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	marked, err := env.reads.MarkThreadRead(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	n, err = env.reads.UnreadCount(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// b never read "mine"
	n, err = env.reads.UnreadCount(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
