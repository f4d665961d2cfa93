package listener

import (
	"context"

	"launchscope/internal/model"
)

// Subscription is an open live stream. Err delivers at most one transport error
// and is closed on Unsubscribe.
type Subscription interface {
	Err() <-chan error
	Unsubscribe()
}

// Subscriber opens live subscriptions that deliver launch events into out.
type Subscriber interface {
	Subscribe(ctx context.Context, out chan<- model.LaunchEvent) (Subscription, error)
}
