// Package notify is the outbound push collaborator. Delivery is
// best-effort: a failed or slow dispatch must never fail or delay the send
// path, so publishing runs behind a circuit breaker and callers fire it
// from their own goroutine.
package notify

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
)

type Notification struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	RoomID string `json:"room_id"`
}

type Dispatcher interface {
	Push(ctx context.Context, userID string, n Notification) error
}

// BodyFor renders the push body shown for a message of the given type.
func BodyFor(t model.MessageType, content string) string {
	switch t {
	case model.TypeImage:
		return "🖼 Image"
	case model.TypeVideo:
		return "🎬 Video"
	case model.TypeFile:
		return "📎 File"
	case model.TypeAudio:
		return "🎵 Audio"
	default:
		return content
	}
}

type KafkaDispatcher struct {
	writer *kafkago.Writer
	cb     *gobreaker.CircuitBreaker
	log    *zap.SugaredLogger
}

func NewKafkaDispatcher(brokers []string, topic string, log *zap.SugaredLogger) *KafkaDispatcher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        false,
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "push-dispatch",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &KafkaDispatcher{writer: w, cb: cb, log: log}
}

type pushEvent struct {
	UserID       string       `json:"user_id"`
	Notification Notification `json:"notification"`
	SentAt       time.Time    `json:"sent_at"`
}

func (d *KafkaDispatcher) Push(ctx context.Context, userID string, n Notification) error {
	b, err := json.Marshal(pushEvent{UserID: userID, Notification: n, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = d.cb.Execute(func() (any, error) {
		return nil, d.writer.WriteMessages(ctx, kafkago.Message{
			Key:   []byte(userID),
			Value: b,
			Time:  time.Now(),
		})
	})
	if err != nil {
		d.log.Warnw("push dispatch failed", "user_id", userID, "room_id", n.RoomID, "err", err)
	}
	return err
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
