package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
)

// Storage abstracts the durable blob backend.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Upload is the result of a successful media upload: the durable URL plus
// the original file metadata the client attaches to sendMessage.
type Upload struct {
	URL      string `json:"publicUrl"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

type Service struct {
	store      Storage
	presignTTL time.Duration
	log        *zap.SugaredLogger
}

func NewService(store Storage, presignTTL time.Duration, log *zap.SugaredLogger) *Service {
	return &Service{store: store, presignTTL: presignTTL, log: log}
}

// UploadFile validates and stores an upload, producing the durable URL.
// Validation runs before any storage write so an invalid upload can never
// leave a trace in the message history.
func (s *Service) UploadFile(ctx context.Context, kind Kind, filename, contentType string, data []byte) (*Upload, error) {
	if err := Validate(kind, contentType, int64(len(data))); err != nil {
		return nil, err
	}

	name := strings.ReplaceAll(filename, " ", "-")
	key := fmt.Sprintf("%ss/%s-%d-%s", kind, uuid.NewString(), time.Now().UnixMilli(), name)

	url, err := s.store.Upload(ctx, key, contentType, data)
	if err != nil {
		s.log.Errorw("media upload failed", "kind", kind, "key", key, "err", err)
		return nil, apperr.Internal("upload %s: %v", kind, err)
	}
	if url == "" {
		if url, err = s.store.PresignURL(ctx, key, s.presignTTL); err != nil {
			return nil, apperr.Internal("presign %s: %v", kind, err)
		}
	}

	if kind == KindImage {
		if thumb, err := thumbnail(data); err == nil {
			_, _ = s.store.Upload(ctx, key+"_thumb.jpg", "image/jpeg", thumb)
		}
	}

	return &Upload{URL: url, FileName: name, FileSize: int64(len(data))}, nil
}

func thumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Resize(img, 320, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
