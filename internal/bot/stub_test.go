package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"wabot/internal/domain"
	"wabot/internal/fetch"
	"wabot/internal/media"
)

type stubMessage struct {
	id       string
	chatID   string
	senderID string
	body     string
	typ      domain.MessageType
	viewOnce bool

	quoted    domain.Message
	quotedErr error
	hasQuoted bool

	media       *domain.Media
	downloadErr error
	downloads   int
}

func (m *stubMessage) ID() string               { return m.id }
func (m *stubMessage) ChatID() string           { return m.chatID }
func (m *stubMessage) SenderID() string         { return m.senderID }
func (m *stubMessage) Body() string             { return m.body }
func (m *stubMessage) Type() domain.MessageType { return m.typ }
func (m *stubMessage) IsViewOnce() bool         { return m.viewOnce }
func (m *stubMessage) HasQuoted() bool          { return m.hasQuoted || m.quoted != nil }
func (m *stubMessage) Quoted(ctx context.Context) (domain.Message, error) {
	if m.quotedErr != nil {
		return nil, m.quotedErr
	}
	return m.quoted, nil
}
func (m *stubMessage) Download(ctx context.Context) (*domain.Media, error) {
	m.downloads++
	return m.media, m.downloadErr
}

func textMessage(body string) *stubMessage {
	return &stubMessage{id: "m1", chatID: "chat-1", senderID: "user-1", body: body, typ: domain.TypeText}
}

type stubChat struct {
	id           string
	group        bool
	participants []string
	err          error
}

func (c *stubChat) ID() string    { return c.id }
func (c *stubChat) IsGroup() bool { return c.group }
func (c *stubChat) Participants(ctx context.Context) ([]string, error) {
	return c.participants, c.err
}

type sentReply struct {
	to   domain.Message
	text string
}

type sentMedia struct {
	to      domain.Message
	media   *domain.Media
	caption string
}

type sentMessage struct {
	chatID   string
	text     string
	mentions []string
}

type stubSession struct {
	mu      sync.Mutex
	chat    *stubChat
	chatErr error

	replies []sentReply
	media   []sentMedia
	sends   []sentMessage
}

func (s *stubSession) Name() string { return "stub" }

func (s *stubSession) Reply(ctx context.Context, to domain.Message, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, sentReply{to: to, text: text})
	return nil
}

func (s *stubSession) ReplyMedia(ctx context.Context, to domain.Message, m *domain.Media, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = append(s.media, sentMedia{to: to, media: m, caption: caption})
	return nil
}

func (s *stubSession) Send(ctx context.Context, chatID, text string, mentions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, sentMessage{chatID: chatID, text: text, mentions: mentions})
	return nil
}

func (s *stubSession) Chat(ctx context.Context, chatID string) (domain.Chat, error) {
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	if s.chat == nil {
		return &stubChat{id: chatID}, nil
	}
	return s.chat, nil
}

func (s *stubSession) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies) + len(s.media) + len(s.sends)
}

type stubFetcher struct {
	calls  []string
	result *fetch.Result
	err    error
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	router  *Router
	store   *media.Store
	fetcher *stubFetcher
	session *stubSession
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithIndex(t, nil)
}

func newHarnessWithIndex(t *testing.T, idx *media.Index) *harness {
	t.Helper()
	store, err := media.NewStore(media.StoreConfig{Dir: t.TempDir(), Index: idx, Logger: discardLogger()})
	require.NoError(t, err)

	f := &stubFetcher{result: &fetch.Result{Data: []byte{0xff, 0xd8, 0xff, 0xe0}, MimeType: "image/jpeg"}}
	h := &harness{
		store:   store,
		fetcher: f,
		session: &stubSession{},
	}
	h.router = NewRouter(RouterConfig{
		Store:   store,
		Fetcher: f,
		Logger:  discardLogger(),
	})
	return h
}

func (h *harness) handle(msg domain.Message) {
	h.router.Handle(context.Background(), domain.InboundEvent{Channel: "test", Session: h.session, Message: msg})
}

func (h *harness) files(t *testing.T) []string {
	t.Helper()
	names, err := h.store.List()
	require.NoError(t, err)
	return names
}
