package bot

import (
	"context"
	"fmt"
	"strings"

	"wabot/internal/domain"
	"wabot/internal/media"
	"wabot/internal/metrics"
)

func (r *Router) download(ctx context.Context, ev domain.InboundEvent, url string) error {
	msg := ev.Message
	if url == "" {
		return ev.Session.Reply(ctx, msg, r.replies.DownloadUsage)
	}

	res, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		r.logger.Warn("download failed", "url", url, "err", err)
		return ev.Session.Reply(ctx, msg, r.replies.DownloadFailed)
	}

	name, err := r.store.Save(ctx, media.FileName("dl", "jpg", r.now()), res.Data, media.Meta{
		Kind:     "dl",
		MimeType: res.MimeType,
		Channel:  ev.Channel,
		ChatID:   msg.ChatID(),
		SenderID: msg.SenderID(),
	})
	if err != nil {
		r.logger.Warn("saving download failed", "url", url, "err", err)
		return ev.Session.Reply(ctx, msg, r.replies.DownloadFailed)
	}
	metrics.MediaSaved.WithLabelValues("dl").Inc()

	data, err := r.store.Read(name)
	if err != nil {
		r.logger.Warn("reading download back failed", "name", name, "err", err)
		return ev.Session.Reply(ctx, msg, r.replies.DownloadFailed)
	}

	out := &domain.Media{Data: data, MimeType: res.MimeType, Filename: name}
	return ev.Session.ReplyMedia(ctx, msg, out, r.replies.DownloadCaption)
}

func (r *Router) stickerToImage(ctx context.Context, ev domain.InboundEvent) error {
	msg := ev.Message

	target := msg
	if msg.HasQuoted() {
		quoted, err := msg.Quoted(ctx)
		if err != nil {
			return fmt.Errorf("resolve quoted message: %w", err)
		}
		target = quoted
	}
	if target == nil || target.Type() != domain.TypeSticker {
		return ev.Session.Reply(ctx, msg, r.replies.StickerInstruction)
	}

	sticker, err := target.Download(ctx)
	if err != nil {
		r.logger.Warn("sticker download failed", "message", target.ID(), "err", err)
		return ev.Session.Reply(ctx, msg, r.replies.StickerFailed)
	}
	if sticker == nil || len(sticker.Data) == 0 {
		return ev.Session.Reply(ctx, msg, r.replies.StickerFailed)
	}

	png, err := r.convert(sticker.Data)
	if err != nil {
		r.logger.Warn("sticker conversion failed", "message", target.ID(), "mime", sticker.MimeType, "err", err)
		return ev.Session.Reply(ctx, msg, r.replies.StickerFailed)
	}

	name, err := r.store.Save(ctx, media.FileName("sticker", "png", r.now()), png, media.Meta{
		Kind:     "sticker2img",
		MimeType: "image/png",
		Channel:  ev.Channel,
		ChatID:   msg.ChatID(),
		SenderID: msg.SenderID(),
	})
	if err != nil {
		r.logger.Warn("saving converted sticker failed", "err", err)
		return ev.Session.Reply(ctx, msg, r.replies.StickerFailed)
	}
	metrics.MediaSaved.WithLabelValues("sticker2img").Inc()

	out := &domain.Media{Data: png, MimeType: "image/png", Filename: name}
	return ev.Session.ReplyMedia(ctx, msg, out, r.replies.StickerCaption)
}

func (r *Router) tagAll(ctx context.Context, ev domain.InboundEvent) error {
	msg := ev.Message

	chat, err := ev.Session.Chat(ctx, msg.ChatID())
	if err != nil {
		return fmt.Errorf("resolve chat: %w", err)
	}
	if !chat.IsGroup() {
		return ev.Session.Reply(ctx, msg, r.replies.TagAllNotGroup)
	}

	participants, err := chat.Participants(ctx)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	text, mentions := mentionAll(r.replies.TagAllHeader, participants)
	return ev.Session.Send(ctx, chat.ID(), text, mentions)
}

// mentionAll builds the header followed by one @token per participant, in
// order, and the matching mention list.
func mentionAll(header string, participants []string) (string, []string) {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	mentions := make([]string, 0, len(participants))
	for i, p := range participants {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString("@")
		b.WriteString(userFragment(p))
		mentions = append(mentions, p)
	}
	return b.String(), mentions
}

// userFragment is the user part of a participant id ("336..@s.whatsapp.net" -> "336..").
func userFragment(id string) string {
	user, _, _ := strings.Cut(id, "@")
	return user
}

func (r *Router) listFiles(ctx context.Context, ev domain.InboundEvent) error {
	names, err := r.store.List()
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	if len(names) == 0 {
		return ev.Session.Reply(ctx, ev.Message, r.replies.ListFilesEmpty)
	}
	return ev.Session.Reply(ctx, ev.Message, strings.Join(names, ", "))
}
