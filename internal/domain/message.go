package domain

import (
	"context"
	"strings"
	"time"
)

// MessageType is the declared type of an inbound message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeVoice    MessageType = "ptt"
	TypeSticker  MessageType = "sticker"
	TypeDocument MessageType = "document"
	TypeLocation MessageType = "location"
	TypeContact  MessageType = "vcard"
	TypeUnknown  MessageType = "unknown"
)

// IsMedia reports whether messages of this type are auto-saved.
func (t MessageType) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeSticker:
		return true
	}
	return false
}

// Media is a binary payload attached to a message or produced by a handler.
type Media struct {
	Data     []byte
	MimeType string
	Filename string
}

// Subtype returns the part of the MIME type after the slash, without parameters.
// "audio/ogg; codecs=opus" yields "ogg".
func (m *Media) Subtype() string {
	mime := m.MimeType
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	_, sub, ok := strings.Cut(strings.TrimSpace(mime), "/")
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(sub))
}

// Message is one inbound chat message as seen by the bot.
type Message interface {
	ID() string
	ChatID() string
	SenderID() string
	Body() string
	Type() MessageType
	IsViewOnce() bool

	// HasQuoted reports whether the message quotes another one.
	HasQuoted() bool
	// Quoted resolves the quoted message.
	Quoted(ctx context.Context) (Message, error)
	// Download fetches the attached media. It returns nil, nil when the
	// message carries no payload.
	Download(ctx context.Context) (*Media, error)
}

// Chat is a conversation handle.
type Chat interface {
	ID() string
	IsGroup() bool
	// Participants lists member identifiers in the platform's order.
	Participants(ctx context.Context) ([]string, error)
}

// Session is the outbound side of a messaging transport.
type Session interface {
	Name() string
	Reply(ctx context.Context, to Message, text string) error
	ReplyMedia(ctx context.Context, to Message, media *Media, caption string) error
	// Send posts a text to a chat; mentions are full participant identifiers.
	Send(ctx context.Context, chatID string, text string, mentions []string) error
	Chat(ctx context.Context, chatID string) (Chat, error)
}

// InboundEvent pairs a message with the session it arrived on.
type InboundEvent struct {
	Channel    string
	Session    Session
	Message    Message
	ReceivedAt time.Time
}
