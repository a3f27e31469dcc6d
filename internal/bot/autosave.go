package bot

import (
	"context"
	"fmt"
	"strings"

	"wabot/internal/domain"
	"wabot/internal/media"
	"wabot/internal/metrics"
)

// autoSave stores the media attached to msg. Only view-once media gets a
// confirmation reply.
func (r *Router) autoSave(ctx context.Context, ev domain.InboundEvent) error {
	msg := ev.Message

	payload, err := msg.Download(ctx)
	if err != nil {
		return fmt.Errorf("download %s media: %w", msg.Type(), err)
	}
	if payload == nil || len(payload.Data) == 0 {
		return nil
	}

	kind := string(msg.Type())
	name, err := r.store.Save(ctx, media.FileName(kind, autoSaveExt(msg.Type(), payload), r.now()), payload.Data, media.Meta{
		Kind:     kind,
		MimeType: payload.MimeType,
		Channel:  ev.Channel,
		ChatID:   msg.ChatID(),
		SenderID: msg.SenderID(),
	})
	if err != nil {
		return fmt.Errorf("save %s media: %w", kind, err)
	}
	metrics.MediaSaved.WithLabelValues(kind).Inc()

	r.logger.Info("media auto-saved", "name", name, "channel", ev.Channel, "view_once", msg.IsViewOnce())

	if msg.IsViewOnce() {
		return ev.Session.Reply(ctx, msg, r.replies.ViewOnceSaved)
	}
	return nil
}

// autoSaveExt is "webp" for stickers, otherwise the MIME subtype.
func autoSaveExt(t domain.MessageType, m *domain.Media) string {
	if t == domain.TypeSticker {
		return "webp"
	}
	ext := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '-', r == '.':
			return r
		}
		return -1
	}, m.Subtype())
	ext = strings.Trim(ext, ".")
	if ext == "" {
		return media.DefaultExt
	}
	return ext
}
