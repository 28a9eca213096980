// Package messenger is the real-time messaging core: the room join
// protocol, the send/broadcast/read-receipt protocol, and the unread-count
// bookkeeping that orchestrates the room and message stores, the presence
// registry, and the push dispatcher.
package messenger

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/notify"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/presence"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/store"
)

// Broadcaster is the outbound event fan-out the core emits through. The
// hub implements it; tests substitute a recorder.
type Broadcaster interface {
	// ToRoom reaches every connection subscribed to the room's channel.
	ToRoom(roomID, event string, data any)
	// ToUser reaches every connection of the user via its personal channel.
	ToUser(userID, event string, data any)
}

const (
	evNewMessage         = "newMessage"
	evChatRoomsUpdated   = "chatRoomsUpdated"
	evUnreadCountUpdated = "unreadCountUpdated"
	evMessagesRead       = "messagesRead"
)

const roomCreatedMarker = "Chat room has been created"

type Service struct {
	rooms    store.RoomStore
	messages store.MessageStore
	bcast    Broadcaster
	presence *presence.Registry
	push     notify.Dispatcher
	log      *zap.SugaredLogger
}

func NewService(
	rooms store.RoomStore,
	messages store.MessageStore,
	bcast Broadcaster,
	reg *presence.Registry,
	push notify.Dispatcher,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		rooms:    rooms,
		messages: messages,
		bcast:    bcast,
		presence: reg,
		push:     push,
		log:      log,
	}
}

// JoinRoom resolves-or-creates the room for {caller, peer}. On creation a
// system message marks the room's birth. Channel subscription switching is
// the connection's job; this method only resolves the room and notifies
// both participants' personal channels.
func (s *Service) JoinRoom(ctx context.Context, caller *model.User, peerUserID string) (*model.Room, error) {
	if peerUserID == "" {
		return nil, apperr.BadRequest("missing peerUserId")
	}
	if peerUserID == caller.ID {
		return nil, apperr.BadRequest("cannot create a chat room with the same user")
	}

	room, created, err := s.rooms.FindOrCreate(ctx, caller.ID, peerUserID)
	if err != nil {
		return nil, err
	}
	if created {
		if _, err := s.messages.Insert(ctx, &model.Message{
			RoomID:   room.ID,
			SenderID: caller.ID,
			Type:     model.TypeDefault,
			Content:  roomCreatedMarker,
		}); err != nil {
			s.log.Errorw("default message insert failed",
				"op", "joinRoom", "room_id", room.ID, "user_id", caller.ID, "err", err)
		}
	}

	s.bcast.ToUser(caller.ID, evChatRoomsUpdated, nil)
	s.bcast.ToUser(peerUserID, evChatRoomsUpdated, nil)
	return room, nil
}

type SendParams struct {
	RoomID          string
	Content         string
	Type            model.MessageType
	ParentMessageID string
	FileName        string
	FileSize        int64
}

// SendMessage persists and broadcasts a message, then settles the
// recipient's read state: an actively viewing recipient gets the message
// marked read immediately, an absent one gets an unread-count update and a
// best-effort push.
func (s *Service) SendMessage(ctx context.Context, sender *model.User, p SendParams) (*model.Message, error) {
	if p.RoomID == "" || p.Content == "" || p.Type == "" {
		return nil, apperr.BadRequest("missing required message fields")
	}
	if sender.Banned {
		return nil, apperr.Unauthorized("you are banned from sending messages")
	}

	room, err := s.rooms.GetByID(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Insert(ctx, &model.Message{
		RoomID:          p.RoomID,
		SenderID:        sender.ID,
		ParentMessageID: p.ParentMessageID,
		Type:            p.Type,
		Content:         p.Content,
		FileName:        p.FileName,
		FileSize:        p.FileSize,
	})
	if err != nil {
		return nil, err
	}

	s.bcast.ToRoom(p.RoomID, evNewMessage, newMessageEvent{Message: msg, RoomID: msg.RoomID})

	if recipient := room.Other(sender.ID); recipient != "" {
		s.settleReadState(ctx, room, sender, recipient, msg)
	}

	s.bcast.ToUser(sender.ID, evChatRoomsUpdated, nil)
	if recipient := room.Other(sender.ID); recipient != "" {
		s.bcast.ToUser(recipient, evChatRoomsUpdated, nil)
	}
	return msg, nil
}

// settleReadState runs after every broadcastable send. Read-state side
// effects of concurrent sends interleave; counts are re-derived from the
// store each time rather than carried over.
func (s *Service) settleReadState(ctx context.Context, room *model.Room, sender *model.User, recipient string, msg *model.Message) {
	if s.presence.Viewing(recipient, room.ID) {
		if _, err := s.messages.MarkRead(ctx, room.ID, recipient); err != nil {
			s.log.Errorw("mark read failed",
				"op", "sendMessage", "room_id", room.ID, "user_id", recipient, "err", err)
			return
		}
		s.bcast.ToUser(recipient, evUnreadCountUpdated, unreadCount{RoomID: room.ID, Count: 0})
		s.bcast.ToRoom(room.ID, evMessagesRead, roomRef{RoomID: room.ID})
		return
	}

	if s.presence.Online(recipient) {
		// online elsewhere: the message reached a device but no eyes
		if _, err := s.messages.MarkDelivered(ctx, room.ID, recipient); err != nil {
			s.log.Warnw("mark delivered failed",
				"op", "sendMessage", "room_id", room.ID, "user_id", recipient, "err", err)
		}
	} else {
		s.dispatchPush(recipient, sender, room.ID, msg)
	}

	count, err := s.messages.UnreadCount(ctx, room.ID, recipient)
	if err != nil {
		s.log.Errorw("unread count failed",
			"op", "sendMessage", "room_id", room.ID, "user_id", recipient, "err", err)
		return
	}
	s.bcast.ToUser(recipient, evUnreadCountUpdated, unreadCount{RoomID: room.ID, Count: count})
}

// dispatchPush fires the out-of-band alert without blocking the send path.
func (s *Service) dispatchPush(recipient string, sender *model.User, roomID string, msg *model.Message) {
	if s.push == nil {
		return
	}
	n := notify.Notification{
		Title:  sender.Username + " sent you a message",
		Body:   notify.BodyFor(msg.Type, msg.Content),
		RoomID: roomID,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.push.Push(ctx, recipient, n)
	}()
}

// SetMessageRead marks every message in the room not authored by the
// caller as read. No-op without error when nothing was unread.
func (s *Service) SetMessageRead(ctx context.Context, user *model.User, roomID string) error {
	if roomID == "" {
		return apperr.BadRequest("missing roomId")
	}
	if _, err := s.messages.MarkRead(ctx, roomID, user.ID); err != nil {
		return err
	}
	count, err := s.messages.UnreadCount(ctx, roomID, user.ID)
	if err != nil {
		return err
	}
	s.bcast.ToUser(user.ID, evUnreadCountUpdated, unreadCount{RoomID: roomID, Count: count})
	s.bcast.ToRoom(roomID, evMessagesRead, roomRef{RoomID: roomID})
	return nil
}

// RoomSummary is a room enriched for list views.
type RoomSummary struct {
	*model.Room
	LastMessage     *model.Message `json:"lastMessage"`
	LastMessageDate time.Time      `json:"lastMessageDate"`
	UnreadCount     int64          `json:"unreadCount"`
}

// ChatRoomsForUser returns the caller's rooms, newest conversation first.
// Rooms without messages sort last.
func (s *Service) ChatRoomsForUser(ctx context.Context, userID string) ([]*RoomSummary, error) {
	rooms, err := s.rooms.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		last, err := s.messages.LastMessage(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		count, err := s.messages.UnreadCount(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}
		summary := &RoomSummary{Room: room, LastMessage: last, UnreadCount: count}
		if last != nil {
			summary.LastMessageDate = last.CreatedAt
		}
		out = append(out, summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageDate.After(out[j].LastMessageDate)
	})
	return out, nil
}

// MessagesForRoom returns the room history in creation order ascending.
func (s *Service) MessagesForRoom(ctx context.Context, roomID string, limit int64, before time.Time) ([]*model.Message, error) {
	if roomID == "" {
		return nil, apperr.BadRequest("missing roomId")
	}
	return s.messages.ListForRoom(ctx, roomID, limit, before)
}

func (s *Service) ChatRoomByID(ctx context.Context, roomID string) (*model.Room, error) {
	return s.rooms.GetByID(ctx, roomID)
}

type unreadCount struct {
	RoomID string `json:"roomId"`
	Count  int64  `json:"count"`
}

type roomRef struct {
	RoomID string `json:"roomId"`
}

// newMessageEvent mirrors the persisted message verbatim plus the roomId
// alias clients key their views on.
type newMessageEvent struct {
	*model.Message
	RoomID string `json:"roomId"`
}
