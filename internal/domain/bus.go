package domain

// MessageBus carries inbound events from transports to the bot loop.
type MessageBus interface {
	Publish(ev InboundEvent)
	Subscribe() <-chan InboundEvent
	Close()
}
