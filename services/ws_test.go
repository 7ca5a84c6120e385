package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectKey_OrderIndependent(t *testing.T) {
	ab := DirectKey("a@x.com", "b@x.com")
	ba := DirectKey("b@x.com", "a@x.com")

	assert.Equal(t, ab, ba)
	assert.Equal(t, "a@x.com_b@x.com", ab.String())

	other, ok := ab.Counterpart("b@x.com")
	require.True(t, ok)
	assert.Equal(t, "a@x.com", other)

	_, ok = ab.Counterpart("c@x.com")
	assert.False(t, ok)
}

func TestGroupKey_RoundTrip(t *testing.T) {
	k := GroupKey(42)
	assert.Equal(t, "group_42", k.String())

	parsed, ok := ParseGroupRoom("group_42")
	require.True(t, ok)
	assert.Equal(t, k, parsed)

	for _, bad := range []string{"group_", "group_x", "42", "group_0"} {
		_, ok := ParseGroupRoom(bad)
		assert.False(t, ok, bad)
	}
}

func TestCommunityKey_RoundTrip(t *testing.T) {
	k := CommunityKey(7)
	assert.Equal(t, "community_7", k.String())

	parsed, ok := ParseCommunityRoom("community_7")
	require.True(t, ok)
	assert.Equal(t, k, parsed)

	_, ok = ParseCommunityRoom("group_7")
	assert.False(t, ok)
	_, ok = ParseGroupRoom("community_7")
	assert.False(t, ok)
}

func TestParseDirectRoom(t *testing.T) {
	room := DirectKey("first_last@x.com", "b@x.com").String()

	k, ok := ParseDirectRoom(room, "first_last@x.com")
	require.True(t, ok)
	other, _ := k.Counterpart("first_last@x.com")
	assert.Equal(t, "b@x.com", other)

	k, ok = ParseDirectRoom(room, "b@x.com")
	require.True(t, ok)
	other, _ = k.Counterpart("b@x.com")
	assert.Equal(t, "first_last@x.com", other)

	_, ok = ParseDirectRoom(room, "c@x.com")
	assert.False(t, ok)
	_, ok = ParseDirectRoom("group_3", "a@x.com")
	assert.False(t, ok)
}
