package media

import (
	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
)

// Kind selects the allow-list and byte ceiling applied to an upload.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

const (
	maxImageBytes = 15 * 1024 * 1024
	maxVideoBytes = 50 * 1024 * 1024
	maxAudioBytes = 50 * 1024 * 1024
	maxFileBytes  = 100 * 1024 * 1024
)

var imageTypes = map[string]bool{
	"image/jpg":     true,
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/x-icon":  true,
	"image/svg+xml": true,
}

var videoTypes = map[string]bool{
	"video/mp4": true,
	"video/mov": true,
	"video/avi": true,
	"video/wmv": true,
	"video/flv": true,
}

var audioTypes = map[string]bool{
	"audio/mpeg": true,
	"audio/mp3":  true,
	"audio/webm": true,
}

// fileTypes is the broader document allow-list; it also accepts anything
// the narrower image/audio/video lists accept.
var fileTypes = map[string]bool{
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/pdf":                true,
	"application/vnd.ms-powerpoint":  true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// Validate rejects an upload before any storage write or message creation.
func Validate(kind Kind, contentType string, size int64) error {
	if size <= 0 {
		return apperr.BadRequest("empty file")
	}
	switch kind {
	case KindImage:
		if size > maxImageBytes {
			return apperr.BadRequest("image exceeds %d bytes", maxImageBytes)
		}
		if !imageTypes[contentType] {
			return apperr.BadRequest("unsupported image type %q", contentType)
		}
	case KindVideo:
		if size > maxVideoBytes {
			return apperr.BadRequest("video exceeds %d bytes", maxVideoBytes)
		}
		if !videoTypes[contentType] {
			return apperr.BadRequest("unsupported video type %q", contentType)
		}
	case KindAudio:
		if size > maxAudioBytes {
			return apperr.BadRequest("audio exceeds %d bytes", maxAudioBytes)
		}
		if !audioTypes[contentType] {
			return apperr.BadRequest("unsupported audio type %q", contentType)
		}
	case KindFile:
		if size > maxFileBytes {
			return apperr.BadRequest("file exceeds %d bytes", maxFileBytes)
		}
		if !fileTypes[contentType] && !imageTypes[contentType] &&
			!audioTypes[contentType] && !videoTypes[contentType] {
			return apperr.BadRequest("unsupported file type %q", contentType)
		}
	default:
		return apperr.BadRequest("unknown upload kind %q", kind)
	}
	return nil
}

// MessageType maps an upload kind to the message type submitted through
// the ordinary send path.
func (k Kind) MessageType() model.MessageType {
	switch k {
	case KindImage:
		return model.TypeImage
	case KindVideo:
		return model.TypeVideo
	case KindAudio:
		return model.TypeAudio
	default:
		return model.TypeFile
	}
}
