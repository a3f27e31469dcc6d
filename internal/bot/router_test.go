package bot

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabot/internal/domain"
	"wabot/internal/media"
)

var (
	dlName      = regexp.MustCompile(`^dl_\d+-[0-9a-f]{8}\.jpg$`)
	stickerName = regexp.MustCompile(`^sticker_\d+-[0-9a-f]{8}\.png$`)
)

func TestHandle_NoCommandNoMediaIsSilent(t *testing.T) {
	for _, body := range []string{"", "hello there", "!unknown", "!dlx", "bonjour tout le monde"} {
		h := newHarness(t)
		msg := textMessage(body)
		h.handle(msg)

		assert.Zero(t, h.session.total(), "body %q", body)
		assert.Empty(t, h.files(t), "body %q", body)
		assert.Zero(t, msg.downloads, "body %q", body)
	}
}

func TestDownload_NoURLRepliesUsage(t *testing.T) {
	h := newHarness(t)
	msg := textMessage("!dl")
	h.handle(msg)

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().DownloadUsage, h.session.replies[0].text)
	assert.Same(t, msg, h.session.replies[0].to)
	assert.Empty(t, h.fetcher.calls)
	assert.Empty(t, h.files(t))
}

func TestDownload_StoresAndRelays(t *testing.T) {
	h := newHarness(t)
	h.handle(textMessage("!dl https://example.com/cat.jpg"))

	assert.Equal(t, []string{"https://example.com/cat.jpg"}, h.fetcher.calls)

	files := h.files(t)
	require.Len(t, files, 1)
	assert.Regexp(t, dlName, files[0])

	require.Len(t, h.session.media, 1)
	sent := h.session.media[0]
	assert.Equal(t, files[0], sent.media.Filename)
	assert.Equal(t, h.fetcher.result.Data, sent.media.Data)
	assert.Equal(t, DefaultReplies().DownloadCaption, sent.caption)
	assert.Empty(t, h.session.replies)

	onDisk, err := os.ReadFile(filepath.Join(h.store.Dir(), files[0]))
	require.NoError(t, err)
	assert.Equal(t, h.fetcher.result.Data, onDisk)
}

func TestDownload_FetchFailureRepliesFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = errBoom
	h.handle(textMessage("!dl https://example.com/missing"))

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().DownloadFailed, h.session.replies[0].text)
	assert.Empty(t, h.session.media)
	assert.Empty(t, h.files(t))
	assert.Len(t, h.fetcher.calls, 1)
}

func TestSticker_NotStickerRepliesInstruction(t *testing.T) {
	h := newHarness(t)
	h.handle(textMessage("!sticker2img"))

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().StickerInstruction, h.session.replies[0].text)
	assert.Empty(t, h.files(t))
}

func TestSticker_QuotedNonStickerRepliesInstruction(t *testing.T) {
	h := newHarness(t)
	msg := textMessage("!sticker2img")
	msg.quoted = &stubMessage{id: "q", typ: domain.TypeImage, media: &domain.Media{Data: []byte("img")}}
	h.handle(msg)

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().StickerInstruction, h.session.replies[0].text)
	assert.Empty(t, h.files(t))
}

func TestSticker_ConvertsQuotedSticker(t *testing.T) {
	h := newHarness(t)
	var converted []byte
	h.router.convert = func(b []byte) ([]byte, error) {
		converted = b
		return []byte("\x89PNG-converted"), nil
	}

	quoted := &stubMessage{id: "q", typ: domain.TypeSticker, media: &domain.Media{Data: []byte("RIFF-webp"), MimeType: "image/webp"}}
	msg := textMessage("!sticker2img")
	msg.quoted = quoted
	h.handle(msg)

	assert.Equal(t, []byte("RIFF-webp"), converted)
	assert.Equal(t, 1, quoted.downloads)

	files := h.files(t)
	require.Len(t, files, 1)
	assert.Regexp(t, stickerName, files[0])

	require.Len(t, h.session.media, 1)
	assert.Equal(t, "image/png", h.session.media[0].media.MimeType)
	assert.Equal(t, []byte("\x89PNG-converted"), h.session.media[0].media.Data)
	assert.Equal(t, DefaultReplies().StickerCaption, h.session.media[0].caption)
	assert.Same(t, msg, h.session.media[0].to)
}

func TestSticker_MissingPayloadRepliesFailure(t *testing.T) {
	h := newHarness(t)
	msg := textMessage("!sticker2img")
	msg.quoted = &stubMessage{id: "q", typ: domain.TypeSticker}
	h.handle(msg)

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().StickerFailed, h.session.replies[0].text)
	assert.Empty(t, h.files(t))
}

func TestSticker_DownloadErrorRepliesFailure(t *testing.T) {
	h := newHarness(t)
	msg := textMessage("!sticker2img")
	msg.quoted = &stubMessage{id: "q", typ: domain.TypeSticker, downloadErr: errBoom}
	h.handle(msg)

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().StickerFailed, h.session.replies[0].text)
}

func TestSticker_QuoteErrorIsSwallowed(t *testing.T) {
	h := newHarness(t)
	msg := textMessage("!sticker2img")
	msg.hasQuoted = true
	msg.quotedErr = errBoom
	h.handle(msg)

	assert.Zero(t, h.session.total())
	assert.Empty(t, h.files(t))
}

func TestTagAll_MentionsEveryParticipantInOrder(t *testing.T) {
	h := newHarness(t)
	participants := []string{
		"33611111111@s.whatsapp.net",
		"33622222222@s.whatsapp.net",
		"33633333333@s.whatsapp.net",
	}
	h.session.chat = &stubChat{id: "group-1@g.us", group: true, participants: participants}
	h.handle(textMessage("!tagall"))

	assert.Empty(t, h.session.replies)
	require.Len(t, h.session.sends, 1)
	sent := h.session.sends[0]
	assert.Equal(t, "group-1@g.us", sent.chatID)
	assert.Equal(t, participants, sent.mentions)

	tokens := regexp.MustCompile(`@\S+`).FindAllString(sent.text, -1)
	assert.Equal(t, []string{"@33611111111", "@33622222222", "@33633333333"}, tokens)
	assert.True(t, strings.HasPrefix(sent.text, DefaultReplies().TagAllHeader))
}

func TestTagAll_EmptyGroup(t *testing.T) {
	h := newHarness(t)
	h.session.chat = &stubChat{id: "g@g.us", group: true}
	h.handle(textMessage("!tagall"))

	require.Len(t, h.session.sends, 1)
	assert.Empty(t, h.session.sends[0].mentions)
	assert.NotContains(t, h.session.sends[0].text, "@")
}

func TestTagAll_NotGroup(t *testing.T) {
	h := newHarness(t)
	h.session.chat = &stubChat{id: "user@s.whatsapp.net", group: false, participants: []string{"a@s.whatsapp.net"}}
	h.handle(textMessage("!tagall"))

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().TagAllNotGroup, h.session.replies[0].text)
	assert.Empty(t, h.session.sends)
}

func TestTagAll_ParticipantErrorIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.session.chat = &stubChat{id: "g@g.us", group: true, err: errBoom}
	h.handle(textMessage("!tagall"))

	assert.Zero(t, h.session.total())
}

func TestListFiles(t *testing.T) {
	h := newHarness(t)
	h.handle(textMessage("!listfiles"))
	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().ListFilesEmpty, h.session.replies[0].text)

	for _, n := range []string{"a.jpg", "b.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(h.store.Dir(), n), []byte(n), 0o644))
	}
	h.handle(textMessage("!listfiles"))
	require.Len(t, h.session.replies, 2)
	got := strings.Split(h.session.replies[1].text, ", ")
	assert.ElementsMatch(t, []string{"a.jpg", "b.png"}, got)
}

func TestGreetingAndHelp(t *testing.T) {
	h := newHarness(t)
	h.handle(textMessage("Salut"))
	h.handle(textMessage("!help"))

	require.Len(t, h.session.replies, 2)
	assert.Equal(t, DefaultReplies().Greeting, h.session.replies[0].text)
	assert.Equal(t, DefaultReplies().Help, h.session.replies[1].text)
	for _, cmd := range []string{"!dl", "!sticker2img", "!tagall", "!listfiles", "!help"} {
		assert.Contains(t, h.session.replies[1].text, cmd)
	}
}

func TestAutoSave_ViewOnceImageReplies(t *testing.T) {
	h := newHarness(t)
	msg := &stubMessage{
		id: "v1", chatID: "chat-1", typ: domain.TypeImage, viewOnce: true,
		media: &domain.Media{Data: []byte("jpegdata"), MimeType: "image/jpeg"},
	}
	h.handle(msg)

	files := h.files(t)
	require.Len(t, files, 1)
	assert.Regexp(t, `^image_\d+-[0-9a-f]{8}\.jpeg$`, files[0])

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().ViewOnceSaved, h.session.replies[0].text)
	assert.Same(t, msg, h.session.replies[0].to)
}

func TestAutoSave_OrdinaryImageIsSilent(t *testing.T) {
	h := newHarness(t)
	h.handle(&stubMessage{
		id: "i1", chatID: "chat-1", typ: domain.TypeImage,
		media: &domain.Media{Data: []byte("jpegdata"), MimeType: "image/jpeg"},
	})

	assert.Len(t, h.files(t), 1)
	assert.Zero(t, h.session.total())
}

func TestAutoSave_Extensions(t *testing.T) {
	tests := []struct {
		typ  domain.MessageType
		mime string
		ext  string
	}{
		{domain.TypeSticker, "image/png", ".webp"},
		{domain.TypeAudio, "audio/ogg; codecs=opus", ".ogg"},
		{domain.TypeVideo, "video/mp4", ".mp4"},
		{domain.TypeImage, "", ".bin"},
		{domain.TypeImage, "image/SVG+XML", ".svg+xml"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ)+tt.mime, func(t *testing.T) {
			h := newHarness(t)
			h.handle(&stubMessage{typ: tt.typ, media: &domain.Media{Data: []byte("x"), MimeType: tt.mime}})

			files := h.files(t)
			require.Len(t, files, 1)
			assert.True(t, strings.HasPrefix(files[0], string(tt.typ)+"_"), files[0])
			assert.Equal(t, tt.ext, filepath.Ext(files[0]))
		})
	}
}

func TestAutoSave_NoPayloadDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.handle(&stubMessage{typ: domain.TypeImage, viewOnce: true})

	assert.Empty(t, h.files(t))
	assert.Zero(t, h.session.total())
}

func TestAutoSave_RunsAlongsideCommand(t *testing.T) {
	h := newHarness(t)
	msg := &stubMessage{
		body: "!help", typ: domain.TypeImage,
		media: &domain.Media{Data: []byte("img"), MimeType: "image/png"},
	}
	h.handle(msg)

	require.Len(t, h.session.replies, 1)
	assert.Equal(t, DefaultReplies().Help, h.session.replies[0].text)
	assert.Len(t, h.files(t), 1)
}

func TestAutoSave_RunsWhenCommandFails(t *testing.T) {
	h := newHarness(t)
	h.session.chatErr = errBoom
	h.handle(&stubMessage{
		body: "!tagall", typ: domain.TypeVideo,
		media: &domain.Media{Data: []byte("vid"), MimeType: "video/mp4"},
	})

	assert.Len(t, h.files(t), 1)
}

type panicSession struct{ stubSession }

func (p *panicSession) Reply(ctx context.Context, to domain.Message, text string) error {
	panic("transport exploded")
}

func TestHandle_RecoversPanics(t *testing.T) {
	h := newHarness(t)
	s := &panicSession{}
	assert.NotPanics(t, func() {
		h.router.Handle(context.Background(), domain.InboundEvent{Channel: "test", Session: s, Message: textMessage("!help")})
	})

	h.handle(textMessage("!help"))
	assert.Len(t, h.session.replies, 1, "later messages are unaffected")
}

func TestHandle_NilMessage(t *testing.T) {
	h := newHarness(t)
	assert.NotPanics(t, func() {
		h.router.Handle(context.Background(), domain.InboundEvent{Session: h.session})
	})
}

func TestSavedMedia_RecordsSenderInIndex(t *testing.T) {
	idx, err := media.OpenIndex(filepath.Join(t.TempDir(), "media.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	h := newHarnessWithIndex(t, idx)

	h.handle(textMessage("!dl https://example.com/cat.jpg"))
	h.handle(&stubMessage{
		id: "v1", chatID: "chat-2", senderID: "user-2", typ: domain.TypeImage, viewOnce: true,
		media: &domain.Media{Data: []byte("jpegdata"), MimeType: "image/jpeg"},
	})

	entries, err := idx.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	senders := map[string]string{}
	chats := map[string]string{}
	for _, e := range entries {
		senders[e.Kind] = e.SenderID
		chats[e.Kind] = e.ChatID
	}
	assert.Equal(t, map[string]string{"dl": "user-1", "image": "user-2"}, senders)
	assert.Equal(t, map[string]string{"dl": "chat-1", "image": "chat-2"}, chats)
}
