package channel

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"wabot/internal/domain"
)

// waDownloader fetches and decrypts a media attachment.
type waDownloader interface {
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

// waMessage adapts a WhatsApp message to domain.Message.
type waMessage struct {
	dl       waDownloader
	id       string
	chat     string
	sender   string
	viewOnce bool
	msg      *waE2E.Message
}

var _ domain.Message = (*waMessage)(nil)

func newWAMessage(dl waDownloader, evt *events.Message) *waMessage {
	m := evt.Message
	return &waMessage{
		dl:       dl,
		id:       evt.Info.ID,
		chat:     evt.Info.Chat.String(),
		sender:   evt.Info.Sender.String(),
		viewOnce: evt.IsViewOnce || evt.IsViewOnceV2 || evt.IsViewOnceV2Extension || hasViewOnceFlag(m),
		msg:      m,
	}
}

func (m *waMessage) ID() string               { return m.id }
func (m *waMessage) ChatID() string           { return m.chat }
func (m *waMessage) SenderID() string         { return m.sender }
func (m *waMessage) Body() string             { return waBody(m.msg) }
func (m *waMessage) Type() domain.MessageType { return waType(m.msg) }
func (m *waMessage) IsViewOnce() bool         { return m.viewOnce }

func (m *waMessage) HasQuoted() bool {
	ci := waContextInfo(m.msg)
	return ci.GetQuotedMessage() != nil
}

// Quoted rebuilds the quoted message from the reply context. It carries the
// media keys of the original, so its payload stays downloadable.
func (m *waMessage) Quoted(ctx context.Context) (domain.Message, error) {
	ci := waContextInfo(m.msg)
	q := ci.GetQuotedMessage()
	if q == nil {
		return nil, nil
	}
	sender := ci.GetParticipant()
	if sender == "" {
		sender = m.chat
	}
	return &waMessage{
		dl:       m.dl,
		id:       ci.GetStanzaID(),
		chat:     m.chat,
		sender:   sender,
		viewOnce: hasViewOnceFlag(q),
		msg:      q,
	}, nil
}

func (m *waMessage) Download(ctx context.Context) (*domain.Media, error) {
	dm, mime := waDownloadable(m.msg)
	if dm == nil {
		return nil, nil
	}
	if m.dl == nil {
		return nil, fmt.Errorf("whatsapp client not connected")
	}
	data, err := m.dl.Download(ctx, dm)
	if err != nil {
		return nil, fmt.Errorf("whatsapp download: %w", err)
	}
	return &domain.Media{Data: data, MimeType: mime}, nil
}

func waType(m *waE2E.Message) domain.MessageType {
	switch {
	case m == nil:
		return domain.TypeUnknown
	case m.GetConversation() != "", m.GetExtendedTextMessage() != nil:
		return domain.TypeText
	case m.GetImageMessage() != nil:
		return domain.TypeImage
	case m.GetVideoMessage() != nil:
		return domain.TypeVideo
	case m.GetAudioMessage() != nil:
		if m.GetAudioMessage().GetPTT() {
			return domain.TypeVoice
		}
		return domain.TypeAudio
	case m.GetStickerMessage() != nil:
		return domain.TypeSticker
	case m.GetDocumentMessage() != nil:
		return domain.TypeDocument
	case m.GetLocationMessage() != nil:
		return domain.TypeLocation
	case m.GetContactMessage() != nil:
		return domain.TypeContact
	}
	return domain.TypeUnknown
}

// waBody is the text of a message, or the caption of its media.
func waBody(m *waE2E.Message) string {
	switch {
	case m.GetConversation() != "":
		return m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		return m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		return m.GetImageMessage().GetCaption()
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage().GetCaption()
	case m.GetDocumentMessage() != nil:
		return m.GetDocumentMessage().GetCaption()
	}
	return ""
}

func waContextInfo(m *waE2E.Message) *waE2E.ContextInfo {
	switch {
	case m.GetExtendedTextMessage() != nil:
		return m.GetExtendedTextMessage().GetContextInfo()
	case m.GetImageMessage() != nil:
		return m.GetImageMessage().GetContextInfo()
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage().GetContextInfo()
	case m.GetAudioMessage() != nil:
		return m.GetAudioMessage().GetContextInfo()
	case m.GetStickerMessage() != nil:
		return m.GetStickerMessage().GetContextInfo()
	case m.GetDocumentMessage() != nil:
		return m.GetDocumentMessage().GetContextInfo()
	}
	return nil
}

func waDownloadable(m *waE2E.Message) (whatsmeow.DownloadableMessage, string) {
	switch {
	case m.GetImageMessage() != nil:
		return m.GetImageMessage(), m.GetImageMessage().GetMimetype()
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage(), m.GetVideoMessage().GetMimetype()
	case m.GetAudioMessage() != nil:
		return m.GetAudioMessage(), m.GetAudioMessage().GetMimetype()
	case m.GetStickerMessage() != nil:
		return m.GetStickerMessage(), m.GetStickerMessage().GetMimetype()
	case m.GetDocumentMessage() != nil:
		return m.GetDocumentMessage(), m.GetDocumentMessage().GetMimetype()
	}
	return nil, ""
}

func hasViewOnceFlag(m *waE2E.Message) bool {
	return m.GetImageMessage().GetViewOnce() ||
		m.GetVideoMessage().GetViewOnce() ||
		m.GetAudioMessage().GetViewOnce()
}
