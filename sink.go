package pnp

import "context"

// ExecutionSink runs bootstrap entries. The container makes no assumption
// about how the bytes are interpreted.
type ExecutionSink interface {
	Execute(ctx context.Context, data []byte, name string) error
}

// ExecutionSinkFunc adapts a function to ExecutionSink.
type ExecutionSinkFunc func(ctx context.Context, data []byte, name string) error

// Execute calls f(ctx, data, name).
func (f ExecutionSinkFunc) Execute(ctx context.Context, data []byte, name string) error {
	return f(ctx, data, name)
}
