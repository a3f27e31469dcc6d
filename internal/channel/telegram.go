package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/gabriel-vasile/mimetype"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wabot/internal/domain"
	"wabot/internal/media"
)

const (
	telegramMaxMsgLen   = 4000
	telegramDownloadTTL = 60 * time.Second
)

// Telegram implements domain.Channel and domain.Session for a Telegram bot.
type Telegram struct {
	token       string
	apiEndpoint string
	allowFrom   []int64 // Allowed user IDs (empty = allow all)
	maxBytes    int64

	bot        *tgbotapi.BotAPI
	httpClient *http.Client
	logger     *slog.Logger
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // User IDs as strings
	APIEndpoint string   // optional Bot API endpoint, e.g. a local bot server
	MaxBytes    int64    // max media download size
	Logger      *slog.Logger
}

var (
	_ domain.Channel = (*Telegram)(nil)
	_ domain.Session = (*Telegram)(nil)
)

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 * 1024 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:       cfg.Token,
		apiEndpoint: cfg.APIEndpoint,
		allowFrom:   allowed,
		maxBytes:    cfg.MaxBytes,
		httpClient:  &http.Client{Timeout: telegramDownloadTTL},
		logger:      cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is done.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if t.apiEndpoint != "" {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.apiEndpoint)
	} else {
		bot, err = tgbotapi.NewBotAPI(t.token)
	}
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(bus, update)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled, and
// calling StopReceivingUpdates twice panics.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) handleUpdate(bus domain.MessageBus, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", msg.From.ID,
			"username", msg.From.UserName,
		)
		return
	}

	bus.Publish(domain.InboundEvent{
		Channel:    t.Name(),
		Session:    t,
		Message:    &telegramMessage{tg: t, msg: msg},
		ReceivedAt: time.Unix(int64(msg.Date), 0),
	})
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// Reply answers a message in its chat, quoting it.
func (t *Telegram) Reply(ctx context.Context, to domain.Message, text string) error {
	chatID, err := parseTelegramChatID(to.ChatID())
	if err != nil {
		return err
	}
	replyTo, _ := strconv.Atoi(to.ID())
	return t.sendText(chatID, text, replyTo, nil)
}

// ReplyMedia sends images as photos and everything else as documents.
func (t *Telegram) ReplyMedia(ctx context.Context, to domain.Message, m *domain.Media, caption string) error {
	chatID, err := parseTelegramChatID(to.ChatID())
	if err != nil {
		return err
	}
	replyTo, _ := strconv.Atoi(to.ID())
	file := tgbotapi.FileBytes{Name: m.Filename, Bytes: m.Data}

	var c tgbotapi.Chattable
	if strings.HasPrefix(m.MimeType, "image/") {
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		photo.ReplyToMessageID = replyTo
		c = photo
	} else {
		doc := tgbotapi.NewDocument(chatID, file)
		doc.Caption = caption
		doc.ReplyToMessageID = replyTo
		c = doc
	}
	if _, err := t.bot.Send(c); err != nil {
		return fmt.Errorf("telegram send media: %w", err)
	}
	return nil
}

// Send posts text to a chat. Each mention becomes a text_mention entity on
// the matching "@<id>" token so users without a username are notified too.
func (t *Telegram) Send(ctx context.Context, chatID string, text string, mentions []string) error {
	id, err := parseTelegramChatID(chatID)
	if err != nil {
		return err
	}
	return t.sendText(id, text, 0, mentionEntities(text, mentions))
}

// Chat resolves a chat handle. Bots cannot enumerate group members, so the
// participants of a group are its administrators.
func (t *Telegram) Chat(ctx context.Context, chatID string) (domain.Chat, error) {
	id, err := parseTelegramChatID(chatID)
	if err != nil {
		return nil, err
	}
	chat, err := t.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	if err != nil {
		return nil, fmt.Errorf("telegram get chat: %w", err)
	}
	return &telegramChat{tg: t, id: id, group: chat.IsGroup() || chat.IsSuperGroup()}, nil
}

func (t *Telegram) sendText(chatID int64, text string, replyTo int, entities []tgbotapi.MessageEntity) error {
	// Entities carry offsets into the whole text, so mention messages are
	// never split.
	if len(entities) > 0 {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyToMessageID = replyTo
		msg.Entities = entities
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}

	for _, chunk := range splitTelegramText(text, telegramMaxMsgLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ReplyToMessageID = replyTo
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		replyTo = 0
	}
	return nil
}

func (t *Telegram) download(ctx context.Context, fileID, mime string) (*domain.Media, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve telegram file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("download telegram file status: %d", resp.StatusCode)
	}
	data, err := media.ReadAllWithLimit(resp.Body, t.maxBytes)
	if err != nil {
		return nil, err
	}
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	return &domain.Media{Data: data, MimeType: mime}, nil
}

func parseTelegramChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat ID %q: %w", s, err)
	}
	return id, nil
}

// splitTelegramText cuts text into chunks of at most maxLen bytes, preferring
// newline boundaries.
func splitTelegramText(text string, maxLen int) []string {
	if text == "" {
		return []string{""}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !utf8Start(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// mentionEntities maps each "@<user>" token, in order, to a text_mention
// entity for the participant at the same position. Offsets are in UTF-16
// code units as the Bot API requires.
func mentionEntities(text string, mentions []string) []tgbotapi.MessageEntity {
	if len(mentions) == 0 {
		return nil
	}
	var entities []tgbotapi.MessageEntity
	searchFrom := 0
	for _, m := range mentions {
		userID, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		token := "@" + m
		idx := strings.Index(text[searchFrom:], token)
		if idx < 0 {
			continue
		}
		start := searchFrom + idx
		entities = append(entities, tgbotapi.MessageEntity{
			Type:   "text_mention",
			Offset: utf16Len(text[:start]),
			Length: utf16Len(token),
			User:   &tgbotapi.User{ID: userID},
		})
		searchFrom = start + len(token)
	}
	return entities
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

type telegramChat struct {
	tg    *Telegram
	id    int64
	group bool
}

func (c *telegramChat) ID() string    { return strconv.FormatInt(c.id, 10) }
func (c *telegramChat) IsGroup() bool { return c.group }

func (c *telegramChat) Participants(ctx context.Context) ([]string, error) {
	admins, err := c.tg.bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: c.id},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram get administrators: %w", err)
	}
	ids := make([]string, 0, len(admins))
	for _, a := range admins {
		if a.User == nil || a.User.IsBot {
			continue
		}
		ids = append(ids, strconv.FormatInt(a.User.ID, 10))
	}
	return ids, nil
}

// telegramMessage adapts a Bot API message to domain.Message.
type telegramMessage struct {
	tg  *Telegram
	msg *tgbotapi.Message
}

func (m *telegramMessage) ID() string       { return strconv.Itoa(m.msg.MessageID) }
func (m *telegramMessage) ChatID() string   { return strconv.FormatInt(m.msg.Chat.ID, 10) }
func (m *telegramMessage) IsViewOnce() bool { return false }
func (m *telegramMessage) HasQuoted() bool  { return m.msg.ReplyToMessage != nil }

func (m *telegramMessage) SenderID() string {
	if m.msg.From == nil {
		return ""
	}
	return strconv.FormatInt(m.msg.From.ID, 10)
}

func (m *telegramMessage) Body() string {
	if m.msg.Text != "" {
		return m.msg.Text
	}
	return m.msg.Caption
}

func (m *telegramMessage) Type() domain.MessageType {
	return telegramType(m.msg)
}

func (m *telegramMessage) Quoted(ctx context.Context) (domain.Message, error) {
	q := m.msg.ReplyToMessage
	if q == nil {
		return nil, nil
	}
	if q.Chat == nil {
		q.Chat = m.msg.Chat
	}
	return &telegramMessage{tg: m.tg, msg: q}, nil
}

func (m *telegramMessage) Download(ctx context.Context) (*domain.Media, error) {
	fileID, mime := telegramFile(m.msg)
	if fileID == "" {
		return nil, nil
	}
	return m.tg.download(ctx, fileID, mime)
}

func telegramType(msg *tgbotapi.Message) domain.MessageType {
	switch {
	case msg.Sticker != nil:
		return domain.TypeSticker
	case len(msg.Photo) > 0:
		return domain.TypeImage
	case msg.Video != nil, msg.Animation != nil, msg.VideoNote != nil:
		return domain.TypeVideo
	case msg.Voice != nil:
		return domain.TypeVoice
	case msg.Audio != nil:
		return domain.TypeAudio
	case msg.Document != nil:
		return domain.TypeDocument
	case msg.Location != nil:
		return domain.TypeLocation
	case msg.Contact != nil:
		return domain.TypeContact
	case msg.Text != "":
		return domain.TypeText
	}
	return domain.TypeUnknown
}

// telegramFile returns the file ID and declared MIME type of the media in msg.
func telegramFile(msg *tgbotapi.Message) (string, string) {
	switch {
	case msg.Sticker != nil:
		mime := "image/webp"
		if msg.Sticker.IsAnimated {
			mime = "application/x-tgsticker"
		}
		return msg.Sticker.FileID, mime
	case len(msg.Photo) > 0:
		return largestPhoto(msg.Photo).FileID, "image/jpeg"
	case msg.Video != nil:
		return msg.Video.FileID, msg.Video.MimeType
	case msg.Animation != nil:
		return msg.Animation.FileID, msg.Animation.MimeType
	case msg.VideoNote != nil:
		return msg.VideoNote.FileID, "video/mp4"
	case msg.Voice != nil:
		return msg.Voice.FileID, msg.Voice.MimeType
	case msg.Audio != nil:
		return msg.Audio.FileID, msg.Audio.MimeType
	case msg.Document != nil:
		return msg.Document.FileID, msg.Document.MimeType
	}
	return "", ""
}

func largestPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
