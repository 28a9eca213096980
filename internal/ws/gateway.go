package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/identity"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/messenger"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/presence"
)

type Options struct {
	PingInterval     time.Duration
	WriteDeadline    time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	EventsPerSecond  int
	EventBurst       int
}

// Gateway owns the connection lifecycle: handshake authentication,
// personal-channel subscription, the event dispatch loop, and teardown.
type Gateway struct {
	hub      *Hub
	svc      *messenger.Service
	resolver identity.Resolver
	reg      *presence.Registry
	tracker  *presence.Tracker
	opts     Options
	log      *zap.SugaredLogger
}

func NewGateway(
	hub *Hub,
	svc *messenger.Service,
	resolver identity.Resolver,
	reg *presence.Registry,
	tracker *presence.Tracker,
	opts Options,
	log *zap.SugaredLogger,
) *Gateway {
	return &Gateway{
		hub:      hub,
		svc:      svc,
		resolver: resolver,
		reg:      reg,
		tracker:  tracker,
		opts:     opts,
		log:      log,
	}
}

func (g *Gateway) Hub() *Hub { return g.hub }

// extractToken pulls the bearer credential from the handshake: auth query
// parameter first, Authorization header as fallback.
func extractToken(conn *websocket.Conn) string {
	if t := conn.Query("token"); t != "" {
		return t
	}
	if h := conn.Headers("Authorization"); h != "" {
		if t, err := identity.ParseBearer(h); err == nil {
			return t
		}
	}
	return ""
}

// HandleWS is mounted behind the fiber websocket upgrade middleware.
func (g *Gateway) HandleWS() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), g.opts.HandshakeTimeout)
		user, err := g.resolver.Resolve(ctx, extractToken(conn))
		cancel()
		if err != nil {
			b, _ := marshalEvent(EvError, ErrorPayload{
				Message: err.Error(),
				Status:  apperr.StatusCode(err),
			})
			_ = conn.WriteMessage(websocket.TextMessage, b)
			_ = conn.Close()
			return
		}

		client := NewClient(conn, uuid.NewString(), user.ID, g.opts.EventsPerSecond, g.opts.EventBurst)
		g.hub.Join(client, PersonalChannel(user.ID))
		g.reg.Connect(user.ID, client.ID)
		g.touchActivity(user.ID)
		if g.tracker != nil {
			_ = g.tracker.SetOnline(context.Background(), user.ID)
		}
		g.log.Infow("client connected", "conn_id", client.ID, "user_id", user.ID)

		go client.WritePump(g.opts.PingInterval, g.opts.WriteDeadline)
		g.readLoop(client, user)

		g.hub.Unregister(client)
		g.reg.Disconnect(user.ID, client.ID)
		g.touchActivity(user.ID)
		if g.tracker != nil && !g.reg.Online(user.ID) {
			_ = g.tracker.SetOffline(context.Background(), user.ID)
		}
		client.Close()
		g.log.Infow("client disconnected", "conn_id", client.ID, "user_id", user.ID)
	}
}

func (g *Gateway) touchActivity(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := g.resolver.TouchLastSeen(ctx, userID); err != nil {
		g.log.Warnw("last seen update failed", "user_id", userID, "err", err)
	}
}

func (g *Gateway) readLoop(client *Client, user *model.User) {
	conn := client.conn
	conn.SetReadLimit(g.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * g.opts.PingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * g.opts.PingInterval))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !client.limiter.Allow() {
			client.EnqueueEvent(EvError, ErrorPayload{Message: "rate limit exceeded", Status: 429})
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			client.EnqueueEvent(EvError, ErrorPayload{Message: "malformed event", Status: 400})
			continue
		}
		g.dispatch(client, user, env)
	}
}

// dispatch runs one client event. Every failure is caught here and
// surfaced to the initiating connection only; it never crashes the
// connection or leaks to other subscribers.
func (g *Gateway) dispatch(client *Client, user *model.User, env Envelope) {
	ctx := context.Background()
	var err error
	switch env.Event {
	case EvJoinRoom:
		err = g.handleJoinRoom(ctx, client, user, env.Data)
	case EvSendMessage:
		err = g.handleSendMessage(ctx, client, user, env.Data)
	case EvGetChatRooms:
		err = g.handleGetChatRooms(ctx, client, user)
	case EvGetMessages:
		err = g.handleGetMessages(ctx, client, env.Data)
	case EvLeaveRoom:
		err = g.handleLeaveRoom(client, user, env.Data)
	case EvSetMessageRead:
		err = g.handleSetMessageRead(ctx, client, user, env.Data)
	default:
		err = apperr.BadRequest("unknown event %q", env.Event)
	}
	if err != nil {
		g.log.Errorw("event failed",
			"op", env.Event, "conn_id", client.ID, "user_id", user.ID, "err", err)
		client.EnqueueEvent(EvError, ErrorPayload{
			Message: err.Error(),
			Status:  apperr.StatusCode(err),
		})
	}
}

func (g *Gateway) handleJoinRoom(ctx context.Context, client *Client, user *model.User, data json.RawMessage) error {
	var p JoinRoomPayload
	if err := unmarshal(data, &p); err != nil {
		return err
	}
	room, err := g.svc.JoinRoom(ctx, user, p.PeerUserID)
	if err != nil {
		return err
	}
	// single active room per connection: drop everything but the
	// personal channel, then subscribe to the resolved room
	g.hub.LeaveAllExcept(client, PersonalChannel(user.ID))
	g.hub.Join(client, room.ID)
	g.reg.SetActiveRoom(user.ID, client.ID, room.ID)

	client.EnqueueEvent(EvJoinRoomSuccess, RoomPayload{RoomID: room.ID})
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, client *Client, user *model.User, data json.RawMessage) error {
	var p SendMessagePayload
	if err := unmarshal(data, &p); err != nil {
		return err
	}
	_, err := g.svc.SendMessage(ctx, user, messenger.SendParams{
		RoomID:          p.RoomID,
		Content:         p.Content,
		Type:            model.MessageType(p.MessageType),
		ParentMessageID: p.ParentMessageID,
		FileName:        p.MessageName,
		FileSize:        p.MessageSize,
	})
	return err
}

func (g *Gateway) handleGetChatRooms(ctx context.Context, client *Client, user *model.User) error {
	rooms, err := g.svc.ChatRoomsForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	client.EnqueueEvent(EvChatRooms, rooms)
	return nil
}

func (g *Gateway) handleGetMessages(ctx context.Context, client *Client, data json.RawMessage) error {
	var p GetMessagesPayload
	if err := unmarshal(data, &p); err != nil {
		return err
	}
	var before time.Time
	if p.Before != "" {
		t, err := time.Parse(time.RFC3339, p.Before)
		if err != nil {
			return apperr.BadRequest("invalid before cursor")
		}
		before = t
	}
	msgs, err := g.svc.MessagesForRoom(ctx, p.RoomID, p.Limit, before)
	if err != nil {
		return err
	}
	client.EnqueueEvent(EvMessages, map[string]any{"roomId": p.RoomID, "messages": msgs})
	return nil
}

func (g *Gateway) handleLeaveRoom(client *Client, user *model.User, data json.RawMessage) error {
	var p RoomPayload
	if err := unmarshal(data, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return apperr.BadRequest("missing roomId")
	}
	g.hub.Leave(client, p.RoomID)
	g.reg.SetActiveRoom(user.ID, client.ID, "")
	client.EnqueueEvent(EvRoomLeft, RoomPayload{RoomID: p.RoomID})
	return nil
}

func (g *Gateway) handleSetMessageRead(ctx context.Context, client *Client, user *model.User, data json.RawMessage) error {
	var p RoomPayload
	if err := unmarshal(data, &p); err != nil {
		return err
	}
	return g.svc.SetMessageRead(ctx, user, p.RoomID)
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.BadRequest("missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return apperr.BadRequest("malformed payload")
		}
		return apperr.BadRequest("invalid payload: %v", err)
	}
	return nil
}
