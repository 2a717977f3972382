// Package groutine runs named background goroutines.
//
// The name is attached as a pprof label, so workers show up by name in
// goroutine profiles, and is carried in the context handed to the worker.
package groutine

import (
	"context"
	"runtime/pprof"
)

const labelKey = "goroutine_name"

type nameKey struct{}

// Go runs fn on a new goroutine named name and returns a channel closed
// when fn returns. A nil parent is treated as context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parent == nil {
		parent = context.Background()
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		pprof.Do(context.WithValue(parent, nameKey{}, name), pprof.Labels(labelKey, name), fn)
	}()
	return done
}

// Name returns the name given to Go, or "" outside a named goroutine.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(nameKey{}).(string)
	return name
}
