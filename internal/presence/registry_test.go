package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnlineTracksConnections(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Online("alice"))

	r.Connect("alice", "c1")
	assert.True(t, r.Online("alice"))

	r.Connect("alice", "c2")
	r.Disconnect("alice", "c1")
	assert.True(t, r.Online("alice"))

	r.Disconnect("alice", "c2")
	assert.False(t, r.Online("alice"))
}

func TestViewingRequiresActiveRoom(t *testing.T) {
	r := NewRegistry()
	r.Connect("alice", "c1")
	assert.False(t, r.Viewing("alice", "room1"))

	r.SetActiveRoom("alice", "c1", "room1")
	assert.True(t, r.Viewing("alice", "room1"))
	assert.False(t, r.Viewing("alice", "room2"))

	r.SetActiveRoom("alice", "c1", "")
	assert.False(t, r.Viewing("alice", "room1"))
}

func TestViewingPerConnection(t *testing.T) {
	// two devices viewing different rooms: each room sees the user as
	// viewing it
	r := NewRegistry()
	r.Connect("alice", "phone")
	r.Connect("alice", "laptop")
	r.SetActiveRoom("alice", "phone", "room1")
	r.SetActiveRoom("alice", "laptop", "room2")

	assert.True(t, r.Viewing("alice", "room1"))
	assert.True(t, r.Viewing("alice", "room2"))

	r.Disconnect("alice", "phone")
	assert.False(t, r.Viewing("alice", "room1"))
	assert.True(t, r.Viewing("alice", "room2"))
}

func TestSetActiveRoomIgnoresUnknownConnection(t *testing.T) {
	r := NewRegistry()
	r.SetActiveRoom("alice", "ghost", "room1")
	assert.False(t, r.Viewing("alice", "room1"))
	assert.False(t, r.Online("alice"))
}

func TestEmptyRoomNeverCountsAsViewing(t *testing.T) {
	r := NewRegistry()
	r.Connect("alice", "c1")
	assert.False(t, r.Viewing("alice", ""))
}
