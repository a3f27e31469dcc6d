package bot

import (
	"context"
	"log/slog"
	"sync"

	"wabot/internal/domain"
)

const defaultConcurrency = 5

// Loop consumes inbound events from the bus and hands them to the router.
type Loop struct {
	bus         domain.MessageBus
	router      *Router
	concurrency int
	logger      *slog.Logger
}

type LoopConfig struct {
	Bus         domain.MessageBus
	Router      *Router
	Concurrency int // max messages handled at once (default 5)
	Logger      *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		bus:         cfg.Bus,
		router:      cfg.Router,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Run processes events with bounded concurrency until ctx is done or the bus
// closes, then waits for in-flight messages.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("bot loop started", "concurrency", l.concurrency)

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("bot loop stopping")
			return
		case ev, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, bot loop stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				l.logger.Info("bot loop stopping")
				return
			}
			wg.Add(1)
			go func(ev domain.InboundEvent) {
				defer wg.Done()
				defer func() { <-sem }()
				l.router.Handle(ctx, ev)
			}(ev)
		}
	}
}
