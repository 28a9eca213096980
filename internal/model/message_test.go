package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
)

func TestPairKeyNormalizesOrder(t *testing.T) {
	k1, err := PairKey("alice", "bob")
	require.NoError(t, err)
	k2, err := PairKey("bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestPairKeyRejectsSelfPair(t *testing.T) {
	_, err := PairKey("alice", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestPairKeyRejectsEmpty(t *testing.T) {
	_, err := PairKey("", "bob")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = PairKey("alice", "")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestMessageTypeValid(t *testing.T) {
	for _, mt := range []MessageType{TypeText, TypeImage, TypeAudio, TypeFile, TypeVideo, TypeDefault} {
		assert.True(t, mt.Valid(), string(mt))
	}
	assert.False(t, MessageType("sticker").Valid())
	assert.False(t, MessageType("").Valid())
}

func TestMessageTypeMedia(t *testing.T) {
	assert.True(t, TypeImage.Media())
	assert.True(t, TypeVideo.Media())
	assert.False(t, TypeText.Media())
	assert.False(t, TypeDefault.Media())
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	cases := []struct {
		from, to MessageStatus
		ok       bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusRead, true},
		{StatusDelivered, StatusRead, true},
		{StatusSent, StatusSent, true},
		{StatusRead, StatusRead, true},
		{StatusRead, StatusDelivered, false},
		{StatusRead, StatusSent, false},
		{StatusDelivered, StatusSent, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanAdvanceTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestMessageValidate(t *testing.T) {
	valid := Message{RoomID: "r1", SenderID: "u1", Type: TypeText, Content: "hi"}
	require.NoError(t, valid.Validate())

	cases := []Message{
		{SenderID: "u1", Type: TypeText, Content: "hi"},
		{RoomID: "r1", Type: TypeText, Content: "hi"},
		{RoomID: "r1", SenderID: "u1", Type: TypeText},
		{RoomID: "r1", SenderID: "u1", Type: "bogus", Content: "hi"},
		{RoomID: "r1", SenderID: "u1", Type: TypeText, Content: "hi", Status: "unread"},
	}
	for i, m := range cases {
		assert.ErrorIs(t, m.Validate(), apperr.ErrBadRequest, "case %d", i)
	}
}

func TestRoomMembership(t *testing.T) {
	r := Room{ID: "r1", UserIDs: []string{"alice", "bob"}}
	assert.Equal(t, "bob", r.Other("alice"))
	assert.Equal(t, "alice", r.Other("bob"))
	assert.Equal(t, "alice", r.Other("carol"))
	assert.True(t, r.HasMember("alice"))
	assert.False(t, r.HasMember("carol"))
}
