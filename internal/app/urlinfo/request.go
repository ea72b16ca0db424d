package urlinfo

import (
	"context"
	"time"
)

// Message is an inbound chat message.
type Message struct {
	// Source is where replies go: the channel for channel messages, the
	// sender's nick for private messages.
	Source  string
	Nick    string
	Channel string
	Text    string
}

// Target returns the reply target for m.
func (m Message) Target() string {
	if m.Source != "" {
		return m.Source
	}
	if m.Channel != "" {
		return m.Channel
	}
	return m.Nick
}

// Sink delivers outbound chat messages.
type Sink interface {
	Send(ctx context.Context, target, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, target, text string) error

func (f SinkFunc) Send(ctx context.Context, target, text string) error { return f(ctx, target, text) }

// Request is the context of one URL occurrence. It lives until the reply is
// sent or the chain is abandoned and is never shared between URLs.
type Request struct {
	ID        string
	URL       string
	Origin    Message
	Sink      Sink
	StartedAt time.Time
}

// Reply sends text to the origin of r.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.Sink.Send(ctx, r.Origin.Target(), text)
}
