package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Logger defines the logging contract for notification dispatch.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Message is the channel-independent payload for one customer notification.
type Message struct {
	UserID   string
	Email    string
	Phone    string
	Subject  string
	Body     string
	HTMLBody string
}

// Channel delivers a message over one medium. Implementations must be safe for
// concurrent use.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// ChannelResult records the outcome of one channel delivery attempt.
type ChannelResult struct {
	Channel string
	Err     error
}

// FanOut dispatches one message to every registered channel concurrently.
// A failing channel never prevents the others from delivering.
type FanOut struct {
	channels []Channel
	timeout  time.Duration
	logger   Logger
}

// FanOutDeps lists the collaborators required by NewFanOut.
type FanOutDeps struct {
	Channels []Channel
	Timeout  time.Duration
	Logger   Logger
}

// NewFanOut validates dependencies and constructs a FanOut dispatcher.
func NewFanOut(deps FanOutDeps) (*FanOut, error) {
	if len(deps.Channels) == 0 {
		return nil, errors.New("notifications: at least one channel is required")
	}
	for _, ch := range deps.Channels {
		if ch == nil {
			return nil, errors.New("notifications: nil channel registered")
		}
	}

	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	channels := make([]Channel, len(deps.Channels))
	copy(channels, deps.Channels)

	return &FanOut{
		channels: channels,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// Dispatch sends the message on every channel and waits for all attempts to
// finish. Results are returned in channel registration order.
func (f *FanOut) Dispatch(ctx context.Context, msg Message) []ChannelResult {
	if f == nil || len(f.channels) == 0 {
		return nil
	}

	results := make([]ChannelResult, len(f.channels))
	var wg sync.WaitGroup
	for i, ch := range f.channels {
		wg.Add(1)
		go func(idx int, channel Channel) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			err := channel.Send(sendCtx, msg)
			results[idx] = ChannelResult{Channel: channel.Name(), Err: err}
			if err != nil {
				f.logger(ctx, "notifications.channel.failed", map[string]any{
					"channel": channel.Name(),
					"userId":  msg.UserID,
					"error":   err.Error(),
				})
				return
			}
			f.logger(ctx, "notifications.channel.sent", map[string]any{
				"channel": channel.Name(),
				"userId":  msg.UserID,
			})
		}(i, ch)
	}
	wg.Wait()
	return results
}
