// Package transport delivers event batches to the collection backend.
package transport

import (
	"context"

	"github.com/newsroomkit/beacon-go/pkg/event"
)

// Transport sends one batch per call. A non-nil error means the batch never
// reached the server (DNS failure, timeout, refused connection). A nil error
// with a non-2xx Result means the server answered but did not accept the
// batch; the caller decides whether to retry either way.
type Transport interface {
	Send(ctx context.Context, batch []event.Event) (*Result, error)
}

// Result is the outcome of a delivery attempt that reached the server.
type Result struct {
	Status int
}

// OK reports whether the batch was accepted.
func (r *Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}
