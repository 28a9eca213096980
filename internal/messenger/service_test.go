package messenger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/notify"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/presence"
)

// ---- in-memory stores ----

type fakeRooms struct {
	mu    sync.Mutex
	byKey map[string]*model.Room
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{byKey: make(map[string]*model.Room)}
}

func (f *fakeRooms) FindOrCreate(_ context.Context, a, b string) (*model.Room, bool, error) {
	key, err := model.PairKey(a, b)
	if err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byKey[key]; ok {
		return r, false, nil
	}
	r := &model.Room{
		ID:        uuid.NewString(),
		PairKey:   key,
		UserIDs:   model.SortedPair(a, b),
		CreatedAt: time.Now().UTC(),
	}
	f.byKey[key] = r
	return r, true, nil
}

func (f *fakeRooms) GetByID(_ context.Context, roomID string) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byKey {
		if r.ID == roomID {
			return r, nil
		}
	}
	return nil, apperr.NotFound("chat room %s", roomID)
}

func (f *fakeRooms) ListForUser(_ context.Context, userID string) ([]*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Room{}
	for _, r := range f.byKey {
		if r.HasMember(userID) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeMessages struct {
	mu   sync.Mutex
	seq  int
	msgs []*model.Message
}

func (f *fakeMessages) Insert(_ context.Context, m *model.Message) (*model.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m.ID = uuid.NewString()
	if m.Status == "" {
		m.Status = model.StatusSent
	}
	m.CreatedAt = time.Unix(0, int64(f.seq)*int64(time.Millisecond)).UTC()
	m.UpdatedAt = m.CreatedAt
	if m.ParentMessageID != "" {
		m.IsParentDeleted = true
		for _, p := range f.msgs {
			if p.ID == m.ParentMessageID {
				m.IsParentDeleted = false
			}
		}
	}
	cp := *m
	f.msgs = append(f.msgs, &cp)
	return m, nil
}

func (f *fakeMessages) GetByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("message %s", id)
}

func (f *fakeMessages) ListForRoom(_ context.Context, roomID string, limit int64, before time.Time) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Message{}
	for _, m := range f.msgs {
		if m.RoomID != roomID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (f *fakeMessages) LastMessage(_ context.Context, roomID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *model.Message
	for _, m := range f.msgs {
		if m.RoomID == roomID {
			last = m
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (f *fakeMessages) UnreadCount(_ context.Context, roomID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.msgs {
		if m.RoomID == roomID && m.SenderID != userID && m.Status != model.StatusRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) MarkRead(_ context.Context, roomID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.msgs {
		if m.RoomID == roomID && m.SenderID != userID && m.Status != model.StatusRead {
			m.Status = model.StatusRead
			m.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) MarkDelivered(_ context.Context, roomID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.msgs {
		if m.RoomID == roomID && m.SenderID != userID && m.Status == model.StatusSent {
			m.Status = model.StatusDelivered
			m.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// ---- broadcast recorder ----

type emitted struct {
	Channel string // room id or "user:<id>"
	Event   string
	Data    any
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) ToRoom(roomID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{Channel: roomID, Event: event, Data: data})
}

func (r *recorder) ToUser(userID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{Channel: "user:" + userID, Event: event, Data: data})
}

func (r *recorder) on(channel, event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []emitted{}
	for _, e := range r.events {
		if e.Channel == channel && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakePush struct {
	pushes chan notify.Notification
}

func newFakePush() *fakePush {
	return &fakePush{pushes: make(chan notify.Notification, 8)}
}

func (f *fakePush) Push(_ context.Context, _ string, n notify.Notification) error {
	f.pushes <- n
	return nil
}

// ---- fixture ----

type fixture struct {
	svc   *Service
	rooms *fakeRooms
	msgs  *fakeMessages
	rec   *recorder
	reg   *presence.Registry
	push  *fakePush
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rooms: newFakeRooms(),
		msgs:  &fakeMessages{},
		rec:   &recorder{},
		reg:   presence.NewRegistry(),
		push:  newFakePush(),
	}
	f.svc = NewService(f.rooms, f.msgs, f.rec, f.reg, f.push, zap.NewNop().Sugar())
	return f
}

var (
	alice = &model.User{ID: "alice", Username: "alice"}
	bob   = &model.User{ID: "bob", Username: "bob"}
)

// ---- join protocol ----

func TestJoinRoomIsIdempotentAcrossBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, err := f.svc.JoinRoom(ctx, alice, "bob")
	require.NoError(t, err)
	r2, err := f.svc.JoinRoom(ctx, bob, "alice")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
	assert.Len(t, f.rooms.byKey, 1)
}

func TestJoinRoomSeedsDefaultSystemMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.JoinRoom(ctx, alice, "bob")
	require.NoError(t, err)

	msgs, err := f.svc.MessagesForRoom(ctx, room.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.TypeDefault, msgs[0].Type)
	assert.Equal(t, roomCreatedMarker, msgs[0].Content)
	assert.Equal(t, "alice", msgs[0].SenderID)

	// rejoining must not seed a second one
	_, err = f.svc.JoinRoom(ctx, bob, "alice")
	require.NoError(t, err)
	msgs, _ = f.svc.MessagesForRoom(ctx, room.ID, 0, time.Time{})
	assert.Len(t, msgs, 1)
}

func TestJoinRoomNotifiesBothParticipants(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.JoinRoom(context.Background(), alice, "bob")
	require.NoError(t, err)
	assert.Len(t, f.rec.on("user:alice", evChatRoomsUpdated), 1)
	assert.Len(t, f.rec.on("user:bob", evChatRoomsUpdated), 1)
}

func TestJoinRoomRejectsSelfAndMissingPeer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.JoinRoom(ctx, alice, "")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.svc.JoinRoom(ctx, alice, "alice")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	assert.Empty(t, f.rooms.byKey)
}

func TestConcurrentFirstJoinYieldsExactlyOneRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i, pair := range [][2]*model.User{{alice, bob}, {bob, alice}} {
		wg.Add(1)
		go func(i int, caller *model.User, peer string) {
			defer wg.Done()
			room, err := f.svc.JoinRoom(ctx, caller, peer)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = room.ID
		}(i, pair[0], pair[1].ID)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, ids[0], ids[1])
	assert.Len(t, f.rooms.byKey, 1)

	msgs, _ := f.svc.MessagesForRoom(ctx, ids[0], 0, time.Time{})
	assert.Len(t, msgs, 1, "only the creating join seeds the system message")
}

// ---- send / broadcast / read-receipt protocol ----

func joinedRoom(t *testing.T, f *fixture) *model.Room {
	t.Helper()
	room, err := f.svc.JoinRoom(context.Background(), alice, "bob")
	require.NoError(t, err)
	return room
}

func TestSendBroadcastsPersistedMessageToRoom(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)

	msg, err := f.svc.SendMessage(context.Background(), alice, SendParams{
		RoomID: room.ID, Content: "hi", Type: model.TypeText,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, msg.Status)

	events := f.rec.on(room.ID, evNewMessage)
	require.Len(t, events, 1)
	ev, ok := events[0].Data.(newMessageEvent)
	require.True(t, ok)
	assert.Equal(t, msg.ID, ev.Message.ID)
	assert.Equal(t, room.ID, ev.RoomID)
}

func TestSendToActivelyViewingRecipientMarksRead(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	f.reg.Connect("bob", "c1")
	f.reg.SetActiveRoom("bob", "c1", room.ID)

	_, err := f.svc.SendMessage(context.Background(), alice, SendParams{
		RoomID: room.ID, Content: "hi", Type: model.TypeText,
	})
	require.NoError(t, err)

	// immediately read: zero unread for bob, messagesRead to the room
	unread := f.rec.on("user:bob", evUnreadCountUpdated)
	require.Len(t, unread, 1)
	assert.Equal(t, unreadCount{RoomID: room.ID, Count: 0}, unread[0].Data)
	assert.Len(t, f.rec.on(room.ID, evMessagesRead), 1)

	count, _ := f.msgs.UnreadCount(context.Background(), room.ID, "bob")
	assert.Zero(t, count)

	select {
	case <-f.push.pushes:
		t.Fatal("no push expected for a viewing recipient")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendToRecipientViewingAnotherRoomUpdatesUnread(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	f.reg.Connect("bob", "c1")
	f.reg.SetActiveRoom("bob", "c1", "some-other-room")

	_, err := f.svc.SendMessage(context.Background(), alice, SendParams{
		RoomID: room.ID, Content: "hi", Type: model.TypeText,
	})
	require.NoError(t, err)

	// default system message + "hi" are both short of read
	unread := f.rec.on("user:bob", evUnreadCountUpdated)
	require.Len(t, unread, 1)
	assert.Equal(t, unreadCount{RoomID: room.ID, Count: 2}, unread[0].Data)
	assert.Empty(t, f.rec.on(room.ID, evMessagesRead))

	// the message reached a device, so it advances to delivered
	msgs, _ := f.svc.MessagesForRoom(context.Background(), room.ID, 0, time.Time{})
	assert.Equal(t, model.StatusDelivered, msgs[len(msgs)-1].Status)
}

func TestSendToOfflineRecipientDispatchesPush(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)

	_, err := f.svc.SendMessage(context.Background(), alice, SendParams{
		RoomID: room.ID, Content: "hello there", Type: model.TypeText,
	})
	require.NoError(t, err)

	select {
	case n := <-f.push.pushes:
		assert.Equal(t, "alice sent you a message", n.Title)
		assert.Equal(t, "hello there", n.Body)
		assert.Equal(t, room.ID, n.RoomID)
	case <-time.After(time.Second):
		t.Fatal("push never dispatched")
	}

	unread := f.rec.on("user:bob", evUnreadCountUpdated)
	require.Len(t, unread, 1)
	assert.Equal(t, unreadCount{RoomID: room.ID, Count: 2}, unread[0].Data)
}

func TestSendNotifiesBothRoomLists(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	before := len(f.rec.on("user:alice", evChatRoomsUpdated))

	_, err := f.svc.SendMessage(context.Background(), alice, SendParams{
		RoomID: room.ID, Content: "hi", Type: model.TypeText,
	})
	require.NoError(t, err)

	assert.Len(t, f.rec.on("user:alice", evChatRoomsUpdated), before+1)
	assert.Len(t, f.rec.on("user:bob", evChatRoomsUpdated), before+1)
}

func TestSendRejectsBannedSender(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	banned := &model.User{ID: "alice", Username: "alice", Banned: true}

	_, err := f.svc.SendMessage(context.Background(), banned, SendParams{
		RoomID: room.ID, Content: "hi", Type: model.TypeText,
	})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	msgs, _ := f.svc.MessagesForRoom(context.Background(), room.ID, 0, time.Time{})
	assert.Len(t, msgs, 1, "nothing persisted beyond the system message")
}

func TestSendRejectsMissingFields(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	ctx := context.Background()

	cases := []SendParams{
		{Content: "hi", Type: model.TypeText},
		{RoomID: room.ID, Type: model.TypeText},
		{RoomID: room.ID, Content: "hi"},
	}
	for i, p := range cases {
		_, err := f.svc.SendMessage(ctx, alice, p)
		assert.ErrorIs(t, err, apperr.ErrBadRequest, "case %d", i)
	}
}

func TestSendToUnknownRoomIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SendMessage(context.Background(), alice, SendParams{
		RoomID: "nope", Content: "hi", Type: model.TypeText,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMediaMessageRoundTrip(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	ctx := context.Background()

	sent, err := f.svc.SendMessage(ctx, alice, SendParams{
		RoomID:   room.ID,
		Content:  "https://cdn.example.com/images/cat.png",
		Type:     model.TypeImage,
		FileName: "cat.png",
		FileSize: 2048,
	})
	require.NoError(t, err)

	msgs, err := f.svc.MessagesForRoom(ctx, room.ID, 0, time.Time{})
	require.NoError(t, err)
	got := msgs[len(msgs)-1]
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, model.TypeImage, got.Type)
	assert.Equal(t, "https://cdn.example.com/images/cat.png", got.Content)
	assert.Equal(t, "cat.png", got.FileName)
	assert.Equal(t, int64(2048), got.FileSize)
}

func TestReplyPreviewFlagsDanglingParent(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	ctx := context.Background()

	parent, err := f.svc.SendMessage(ctx, alice, SendParams{
		RoomID: room.ID, Content: "original", Type: model.TypeText,
	})
	require.NoError(t, err)

	reply, err := f.svc.SendMessage(ctx, bob, SendParams{
		RoomID: room.ID, Content: "reply", Type: model.TypeText, ParentMessageID: parent.ID,
	})
	require.NoError(t, err)
	assert.False(t, reply.IsParentDeleted)

	orphan, err := f.svc.SendMessage(ctx, bob, SendParams{
		RoomID: room.ID, Content: "reply to ghost", Type: model.TypeText, ParentMessageID: "gone",
	})
	require.NoError(t, err)
	assert.True(t, orphan.IsParentDeleted)
}

// ---- explicit read receipts ----

func TestSetMessageReadZeroesUnreadAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, alice, SendParams{
		RoomID: room.ID, Content: "hi", Type: model.TypeText,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.SetMessageRead(ctx, bob, room.ID))

	unread := f.rec.on("user:bob", evUnreadCountUpdated)
	require.NotEmpty(t, unread)
	assert.Equal(t, unreadCount{RoomID: room.ID, Count: 0}, unread[len(unread)-1].Data)
	assert.NotEmpty(t, f.rec.on(room.ID, evMessagesRead))

	// again, with nothing unread: still no error, still zero
	require.NoError(t, f.svc.SetMessageRead(ctx, bob, room.ID))
	count, _ := f.msgs.UnreadCount(ctx, room.ID, "bob")
	assert.Zero(t, count)
}

func TestReadReceiptNeverTouchesOwnMessages(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	ctx := context.Background()

	fromAlice, err := f.svc.SendMessage(ctx, alice, SendParams{
		RoomID: room.ID, Content: "mine", Type: model.TypeText,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.SetMessageRead(ctx, alice, room.ID))

	got, err := f.msgs.GetByID(ctx, fromAlice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status, "author's own message stays sent")
}

func TestStatusNeverRegresses(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, alice, SendParams{
		RoomID: room.ID, Content: "hi", Type: model.TypeText,
	})
	require.NoError(t, err)

	_, err = f.msgs.MarkRead(ctx, room.ID, "bob")
	require.NoError(t, err)
	_, err = f.msgs.MarkDelivered(ctx, room.ID, "bob")
	require.NoError(t, err)

	got, err := f.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, got.Status)
}

// ---- query operations ----

func TestChatRoomsOrderedByLastMessageDesc(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older, err := f.svc.JoinRoom(ctx, alice, "bob")
	require.NoError(t, err)
	newer, err := f.svc.JoinRoom(ctx, alice, "carol")
	require.NoError(t, err)
	empty := &model.Room{ID: "empty-room", PairKey: "alice:dave", UserIDs: []string{"alice", "dave"}}
	f.rooms.byKey[empty.PairKey] = empty

	_, err = f.svc.SendMessage(ctx, alice, SendParams{RoomID: older.ID, Content: "first", Type: model.TypeText})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, alice, SendParams{RoomID: newer.ID, Content: "second", Type: model.TypeText})
	require.NoError(t, err)

	rooms, err := f.svc.ChatRoomsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, newer.ID, rooms[0].ID)
	assert.Equal(t, older.ID, rooms[1].ID)
	assert.Equal(t, "empty-room", rooms[2].ID, "rooms with no messages sort last")
	assert.Nil(t, rooms[2].LastMessage)
}

func TestChatRoomsCarryUnreadCounts(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, alice, SendParams{RoomID: room.ID, Content: "one", Type: model.TypeText})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, alice, SendParams{RoomID: room.ID, Content: "two", Type: model.TypeText})
	require.NoError(t, err)

	bobRooms, err := f.svc.ChatRoomsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobRooms, 1)
	// system message + two texts
	assert.Equal(t, int64(3), bobRooms[0].UnreadCount)

	aliceRooms, err := f.svc.ChatRoomsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, aliceRooms[0].UnreadCount)
}

func TestMessagesForRoomAscendingWithPagination(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c"} {
		_, err := f.svc.SendMessage(ctx, alice, SendParams{RoomID: room.ID, Content: content, Type: model.TypeText})
		require.NoError(t, err)
	}

	all, err := f.svc.MessagesForRoom(ctx, room.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
	}

	page, err := f.svc.MessagesForRoom(ctx, room.ID, 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].Content)
	assert.Equal(t, "c", page[1].Content)
}

func TestChatRoomByID(t *testing.T) {
	f := newFixture(t)
	room := joinedRoom(t, f)

	got, err := f.svc.ChatRoomByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = f.svc.ChatRoomByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
