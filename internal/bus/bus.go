package bus

import (
	"log/slog"
	"sync"
	"time"

	"wabot/internal/domain"
	"wabot/internal/metrics"
)

const (
	publishTimeout = 10 * time.Second
	retryInterval  = 20 * time.Millisecond
)

// InMemoryBus hands inbound events from transports to the bot loop.
type InMemoryBus struct {
	inbound chan domain.InboundEvent
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a bus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundEvent, bufferSize),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Publish blocks up to 10 seconds when the buffer is full, then drops the event.
// A waiting Publish returns as soon as the bus closes.
func (b *InMemoryBus) Publish(ev domain.InboundEvent) {
	sent, closed := b.trySend(ev)
	switch {
	case sent:
		return
	case closed:
		b.logger.Warn("attempted to publish to closed bus", "channel", ev.Channel)
		metrics.DroppedMessages.Inc()
		return
	}

	b.logger.Warn("inbound bus full, waiting", "channel", ev.Channel, "chat", chatOf(ev))
	deadline := time.NewTimer(publishTimeout)
	defer deadline.Stop()
	retry := time.NewTicker(retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-b.done:
			b.logger.Warn("event dropped: bus closed while waiting", "channel", ev.Channel, "chat", chatOf(ev))
			metrics.DroppedMessages.Inc()
			return
		case <-deadline.C:
			b.logger.Error("event dropped: bus full for 10s", "channel", ev.Channel, "chat", chatOf(ev))
			metrics.DroppedMessages.Inc()
			return
		case <-retry.C:
			if sent, closed := b.trySend(ev); sent {
				return
			} else if closed {
				b.logger.Warn("event dropped: bus closed while waiting", "channel", ev.Channel, "chat", chatOf(ev))
				metrics.DroppedMessages.Inc()
				return
			}
		}
	}
}

// trySend makes one non-blocking send under the read lock.
func (b *InMemoryBus) trySend(ev domain.InboundEvent) (sent, closed bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, true
	}
	select {
	case b.inbound <- ev:
		return true, false
	default:
		return false, false
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundEvent {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.done)
		close(b.inbound)
	}
}

func chatOf(ev domain.InboundEvent) string {
	if ev.Message == nil {
		return ""
	}
	return ev.Message.ChatID()
}
