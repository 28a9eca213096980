package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/media"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/messenger"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/ws"
)

type Server struct {
	svc   *messenger.Service
	media *media.Service
	log   *zap.SugaredLogger
}

// New builds the Fiber app: the REST messenger surface, the upload
// endpoints, and the websocket upgrade route.
func New(
	svc *messenger.Service,
	mediaSvc *media.Service,
	gateway *ws.Gateway,
	auth fiber.Handler,
	log *zap.SugaredLogger,
) *fiber.App {
	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(fiberlogger.New())

	s := &Server{svc: svc, media: mediaSvc, log: log}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(gateway.HandleWS()))

	m := app.Group("/messenger", auth)
	m.Get("/chat-rooms", s.getChatRooms)
	m.Get("/chat-rooms/:roomId", s.getChatRoom)
	m.Get("/chat-rooms/:roomId/messages", s.getMessages)
	m.Post("/chat-rooms/:roomId/messages", s.sendMessage)

	uploads := m.Group("", RateLimit(2, 5))
	uploads.Post("/upload-image", s.upload(media.KindImage))
	uploads.Post("/upload-video", s.upload(media.KindVideo))
	uploads.Post("/upload-audio", s.upload(media.KindAudio))
	uploads.Post("/upload-file", s.upload(media.KindFile))

	return app
}

func (s *Server) getChatRooms(c *fiber.Ctx) error {
	rooms, err := s.svc.ChatRoomsForUser(c.Context(), currentUser(c).ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(rooms)
}

func (s *Server) getChatRoom(c *fiber.Ctx) error {
	room, err := s.svc.ChatRoomByID(c.Context(), c.Params("roomId"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(room)
}

func (s *Server) getMessages(c *fiber.Ctx) error {
	var before time.Time
	if v := c.Query("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return s.fail(c, apperr.BadRequest("invalid before cursor"))
		}
		before = t
	}
	msgs, err := s.svc.MessagesForRoom(c.Context(), c.Params("roomId"), int64(c.QueryInt("limit")), before)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"roomId": c.Params("roomId"), "messages": msgs})
}

type sendMessageBody struct {
	Content         string `json:"content"`
	MessageType     string `json:"message_type"`
	ParentMessageID string `json:"parent_message_id"`
	MessageName     string `json:"message_name"`
	MessageSize     int64  `json:"message_size"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var body sendMessageBody
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, apperr.BadRequest("malformed body"))
	}
	msg, err := s.svc.SendMessage(c.Context(), currentUser(c), messenger.SendParams{
		RoomID:          c.Params("roomId"),
		Content:         body.Content,
		Type:            model.MessageType(body.MessageType),
		ParentMessageID: body.ParentMessageID,
		FileName:        body.MessageName,
		FileSize:        body.MessageSize,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(msg)
}

// upload validates and stores a media binary, returning the durable URL
// the client then submits through the ordinary send path.
func (s *Server) upload(kind media.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return s.fail(c, apperr.BadRequest("file missing"))
		}
		contentType := fh.Header.Get("Content-Type")

		// cheap rejection before the body is read
		if err := media.Validate(kind, contentType, fh.Size); err != nil {
			return s.fail(c, err)
		}

		f, err := fh.Open()
		if err != nil {
			return s.fail(c, apperr.Internal("cannot open upload: %v", err))
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return s.fail(c, apperr.Internal("cannot read upload: %v", err))
		}

		up, err := s.media.UploadFile(c.Context(), kind, fh.Filename, contentType, data)
		if err != nil {
			return s.fail(c, err)
		}
		return c.Status(http.StatusCreated).JSON(up)
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := apperr.StatusCode(err)
	if status == http.StatusInternalServerError {
		s.log.Errorw("request failed", "path", c.Path(), "err", err)
		return c.Status(status).JSON(fiber.Map{"success": false, "message": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "message": err.Error()})
}
