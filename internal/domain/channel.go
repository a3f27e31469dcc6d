package domain

import "context"

// Channel is a messaging transport (WhatsApp, Telegram).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
