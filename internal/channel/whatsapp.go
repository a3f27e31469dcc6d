package channel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"wabot/internal/domain"
)

// PairingHandler receives the session lifecycle of the WhatsApp client.
type PairingHandler interface {
	HandleCode(code string) error
	Ready()
}

// waClient is the part of *whatsmeow.Client the adapter uses.
type waClient interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	Upload(ctx context.Context, plaintext []byte, appInfo whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

// WhatsApp implements domain.Channel and domain.Session over the WhatsApp
// multi-device protocol. The linked device is persisted in SQLite, so the QR
// code only has to be scanned once.
type WhatsApp struct {
	sessionDB string
	pairing   PairingHandler
	logger    *slog.Logger

	client waClient
}

var (
	_ domain.Channel = (*WhatsApp)(nil)
	_ domain.Session = (*WhatsApp)(nil)
)

type WhatsAppConfig struct {
	SessionDB string // path of the SQLite device store
	Pairing   PairingHandler
	Logger    *slog.Logger
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhatsApp{
		sessionDB: cfg.SessionDB,
		pairing:   cfg.Pairing,
		logger:    cfg.Logger,
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

// Start opens the device store, connects and pairs if needed, then blocks
// until ctx is done.
func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	if err := os.MkdirAll(filepath.Dir(w.sessionDB), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	waLogger := NewWALogger(w.logger)
	dsn := "file:" + w.sessionDB + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLogger.Sub("store"))
	if err != nil {
		return fmt.Errorf("open whatsapp session store: %w", err)
	}
	defer container.Close()

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLogger.Sub("client"))
	w.client = client
	client.AddEventHandler(func(evt any) {
		w.handleEvent(bus, evt)
	})

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("whatsapp connect: %w", err)
		}
		go w.consumePairing(qrChan)
	} else if err := client.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}

	w.logger.Info("whatsapp channel started", "session", w.sessionDB, "paired", client.Store.ID != nil)

	<-ctx.Done()
	w.logger.Info("whatsapp channel stopping")
	client.Disconnect()
	return nil
}

func (w *WhatsApp) Stop() error { return nil }

func (w *WhatsApp) consumePairing(items <-chan whatsmeow.QRChannelItem) {
	for item := range items {
		if item.Event == whatsmeow.QRChannelEventCode {
			if w.pairing == nil {
				continue
			}
			if err := w.pairing.HandleCode(item.Code); err != nil {
				w.logger.Error("pairing code render failed", "err", err)
			}
			continue
		}
		w.logger.Info("whatsapp pairing event", "event", item.Event)
	}
}

func (w *WhatsApp) handleEvent(bus domain.MessageBus, evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		if w.pairing != nil {
			w.pairing.Ready()
		}
	case *events.PairSuccess:
		w.logger.Info("whatsapp device linked", "jid", e.ID.String())
	case *events.LoggedOut:
		w.logger.Warn("whatsapp session logged out, delete the session database to pair again", "reason", e.Reason.String())
	case *events.Message:
		if e.Info.IsFromMe || e.Info.Chat == types.StatusBroadcastJID || e.Message == nil {
			return
		}
		ts := e.Info.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		bus.Publish(domain.InboundEvent{
			Channel:    w.Name(),
			Session:    w,
			Message:    newWAMessage(w.client, e),
			ReceivedAt: ts,
		})
	}
}

// Reply sends text to the chat of to, quoting it.
func (w *WhatsApp) Reply(ctx context.Context, to domain.Message, text string) error {
	chat, err := types.ParseJID(to.ChatID())
	if err != nil {
		return fmt.Errorf("invalid chat jid %q: %w", to.ChatID(), err)
	}
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String(text),
		ContextInfo: quoteContext(to),
	}}
	if _, err := w.client.SendMessage(ctx, chat, msg); err != nil {
		return fmt.Errorf("whatsapp send reply: %w", err)
	}
	return nil
}

// ReplyMedia uploads m and sends it as an image when it is one, otherwise as
// a document.
func (w *WhatsApp) ReplyMedia(ctx context.Context, to domain.Message, m *domain.Media, caption string) error {
	chat, err := types.ParseJID(to.ChatID())
	if err != nil {
		return fmt.Errorf("invalid chat jid %q: %w", to.ChatID(), err)
	}

	isImage := strings.HasPrefix(m.MimeType, "image/")
	mediaType := whatsmeow.MediaDocument
	if isImage {
		mediaType = whatsmeow.MediaImage
	}
	up, err := w.client.Upload(ctx, m.Data, mediaType)
	if err != nil {
		return fmt.Errorf("whatsapp upload: %w", err)
	}

	var msg *waE2E.Message
	if isImage {
		msg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(m.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   quoteContext(to),
		}}
	} else {
		mime := m.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		msg = &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       proto.String(caption),
			Title:         proto.String(m.Filename),
			FileName:      proto.String(m.Filename),
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   quoteContext(to),
		}}
	}

	if _, err := w.client.SendMessage(ctx, chat, msg); err != nil {
		return fmt.Errorf("whatsapp send media: %w", err)
	}
	return nil
}

// Send posts text to chatID with mentions as the mentioned JIDs.
func (w *WhatsApp) Send(ctx context.Context, chatID string, text string, mentions []string) error {
	chat, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat jid %q: %w", chatID, err)
	}
	ext := &waE2E.ExtendedTextMessage{Text: proto.String(text)}
	if len(mentions) > 0 {
		ext.ContextInfo = &waE2E.ContextInfo{MentionedJID: mentions}
	}
	if _, err := w.client.SendMessage(ctx, chat, &waE2E.Message{ExtendedTextMessage: ext}); err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	return nil
}

func (w *WhatsApp) Chat(ctx context.Context, chatID string) (domain.Chat, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("invalid chat jid %q: %w", chatID, err)
	}
	return &waChat{client: w.client, jid: jid}, nil
}

// quoteContext builds the context that makes a reply quote to. Messages from
// other transports are sent unquoted.
func quoteContext(to domain.Message) *waE2E.ContextInfo {
	m, ok := to.(*waMessage)
	if !ok || m.id == "" {
		return nil
	}
	ci := &waE2E.ContextInfo{
		StanzaID:      proto.String(m.id),
		QuotedMessage: m.msg,
	}
	if m.sender != "" {
		ci.Participant = proto.String(m.sender)
	}
	return ci
}

type waChat struct {
	client waClient
	jid    types.JID
}

func (c *waChat) ID() string    { return c.jid.String() }
func (c *waChat) IsGroup() bool { return c.jid.Server == types.GroupServer }

func (c *waChat) Participants(ctx context.Context) ([]string, error) {
	if !c.IsGroup() {
		return nil, nil
	}
	info, err := c.client.GetGroupInfo(ctx, c.jid)
	if err != nil {
		return nil, fmt.Errorf("whatsapp group info: %w", err)
	}
	ids := make([]string, 0, len(info.Participants))
	for _, p := range info.Participants {
		ids = append(ids, p.JID.String())
	}
	return ids, nil
}

// waSlogLogger adapts slog to whatsmeow's logger interface.
type waSlogLogger struct {
	l *slog.Logger
}

func NewWALogger(l *slog.Logger) waLog.Logger {
	return waSlogLogger{l: l}
}

func (w waSlogLogger) Errorf(msg string, args ...any) { w.l.Error(fmt.Sprintf(msg, args...)) }
func (w waSlogLogger) Warnf(msg string, args ...any)  { w.l.Warn(fmt.Sprintf(msg, args...)) }
func (w waSlogLogger) Infof(msg string, args ...any)  { w.l.Info(fmt.Sprintf(msg, args...)) }
func (w waSlogLogger) Debugf(msg string, args ...any) { w.l.Debug(fmt.Sprintf(msg, args...)) }

func (w waSlogLogger) Sub(module string) waLog.Logger {
	return waSlogLogger{l: w.l.With("module", module)}
}
