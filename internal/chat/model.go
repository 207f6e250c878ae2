package chat

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindAudio AttachmentKind = "audio"
	KindFile  AttachmentKind = "file"
)

// Attachment carries its payload inline as a data URI. There is no blob
// store; an attachment lives and dies with its message.
type Attachment struct {
	Kind     AttachmentKind
	MimeType string
	Name     string
	DataURI  string
}

type Message struct {
	ID          string
	Role        Role
	Content     string
	Attachments []Attachment
	CreatedAt   time.Time
}

type Session struct {
	ID        string
	Title     string
	Messages  []Message
	CreatedAt time.Time
}

func NewMessage(role Role, content string, attachments []Attachment) Message {
	return Message{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}
}

// NewImageAttachment wraps raw image bytes as an inline attachment.
func NewImageAttachment(mimeType string, data []byte) Attachment {
	return Attachment{
		Kind:     KindImage,
		MimeType: mimeType,
		DataURI:  DataURI(mimeType, data),
	}
}

// KindForMime maps a MIME type onto the attachment kinds the UI knows how
// to render. Anything that is not an image or audio renders as a file chip.
func KindForMime(mimeType string) AttachmentKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}

// DataURI encodes raw bytes as a self-describing data URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI splits a data URI into its MIME type and decoded payload.
func ParseDataURI(uri string) (mimeType string, data []byte, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("not a data URI")
	}

	rest := strings.TrimPrefix(uri, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI: missing payload")
	}

	mimeType = strings.TrimSuffix(meta, ";base64")
	if mimeType == meta {
		return "", nil, fmt.Errorf("unsupported data URI encoding: %s", meta)
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI payload: %w", err)
	}

	return mimeType, data, nil
}
