// Package bot classifies inbound chat messages and runs the matching actions.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"wabot/internal/convert"
	"wabot/internal/domain"
	"wabot/internal/fetch"
	"wabot/internal/media"
	"wabot/internal/metrics"
)

// Store is the subset of the media store the handlers use.
type Store interface {
	Save(ctx context.Context, name string, data []byte, meta media.Meta) (string, error)
	Read(name string) ([]byte, error)
	List() ([]string, error)
}

// Fetcher retrieves a remote URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

type RouterConfig struct {
	Store   Store
	Fetcher Fetcher
	Replies Replies
	// Convert turns a sticker payload into PNG (default: convert.StickerToPNG).
	Convert func([]byte) ([]byte, error)
	Now     func() time.Time
	Logger  *slog.Logger
}

// Router runs at most one command per message plus the independent
// auto-save action. Failures never leave Handle.
type Router struct {
	store   Store
	fetcher Fetcher
	replies Replies
	convert func([]byte) ([]byte, error)
	now     func() time.Time
	logger  *slog.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Convert == nil {
		cfg.Convert = convert.StickerToPNG
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Replies == (Replies{}) {
		cfg.Replies = DefaultReplies()
	}
	return &Router{
		store:   cfg.Store,
		fetcher: cfg.Fetcher,
		replies: cfg.Replies,
		convert: cfg.Convert,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
}

// Handle processes one inbound event.
func (r *Router) Handle(ctx context.Context, ev domain.InboundEvent) {
	msg := ev.Message
	if msg == nil || ev.Session == nil {
		return
	}
	metrics.MessagesReceived.WithLabelValues(ev.Channel).Inc()

	r.logger.Debug("message received",
		"channel", ev.Channel,
		"chat", msg.ChatID(),
		"sender", msg.SenderID(),
		"type", msg.Type(),
		"view_once", msg.IsViewOnce(),
	)

	if cmd := Classify(msg.Body()); cmd != nil {
		metrics.CommandsHandled.WithLabelValues(cmd.Name()).Inc()
		r.guard(ev, cmd.Name(), func() error { return r.dispatch(ctx, ev, cmd) })
	}

	if ShouldAutoSave(msg) {
		r.guard(ev, "autosave", func() error { return r.autoSave(ctx, ev) })
	}
}

// guard is the failure boundary: errors and panics are logged, never replied.
func (r *Router) guard(ev domain.InboundEvent, action string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			metrics.HandlerErrors.WithLabelValues(action).Inc()
			r.logger.Error("panic while handling message",
				"action", action,
				"channel", ev.Channel,
				"chat", ev.Message.ChatID(),
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := fn(); err != nil {
		metrics.HandlerErrors.WithLabelValues(action).Inc()
		r.logger.Error("message handling failed",
			"action", action,
			"channel", ev.Channel,
			"chat", ev.Message.ChatID(),
			"err", err,
		)
	}
}

func (r *Router) dispatch(ctx context.Context, ev domain.InboundEvent, cmd Command) error {
	switch c := cmd.(type) {
	case Download:
		return r.download(ctx, ev, c.URL)
	case StickerToImage:
		return r.stickerToImage(ctx, ev)
	case TagAll:
		return r.tagAll(ctx, ev)
	case ListFiles:
		return r.listFiles(ctx, ev)
	case Greeting:
		return ev.Session.Reply(ctx, ev.Message, r.replies.Greeting)
	case Help:
		return ev.Session.Reply(ctx, ev.Message, r.replies.Help)
	default:
		return fmt.Errorf("unhandled command %T", cmd)
	}
}
