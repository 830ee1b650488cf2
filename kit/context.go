package kit

import "context"

// DefaultTransport is reported for calls that never passed through a
// transport adapter.
const DefaultTransport = "http"

// Call describes how the current endpoint invocation arrived.
type Call struct {
	Transport string // "http", "mcp" or "cli"
	RequestID string
}

type callKey struct{}

// CallFrom returns the call metadata stored in ctx, with the transport
// defaulted.
func CallFrom(ctx context.Context) Call {
	c, _ := ctx.Value(callKey{}).(Call)
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}
	return c
}

func withCall(ctx context.Context, update func(*Call)) context.Context {
	c, _ := ctx.Value(callKey{}).(Call)
	update(&c)
	return context.WithValue(ctx, callKey{}, c)
}

func WithTransport(ctx context.Context, t string) context.Context {
	return withCall(ctx, func(c *Call) { c.Transport = t })
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return withCall(ctx, func(c *Call) { c.RequestID = id })
}

func GetTransport(ctx context.Context) string { return CallFrom(ctx).Transport }

func GetRequestID(ctx context.Context) string { return CallFrom(ctx).RequestID }
