// Package channel manages the per-request push channels over which the
// backend reports the progress of long-running creations.
package channel

import (
	"context"
	"errors"

	"navconsole/internal/progress"
)

// ErrStreamEnded is reported when the backend closes a stream before
// sending a terminal message.
var ErrStreamEnded = errors.New("progress stream ended before completion")

// Stream is an open progress subscription for one request.
type Stream interface {
	// Next blocks until the next message arrives. Frames that cannot be
	// parsed are reported with an error wrapping progress.ErrInvalidMessage;
	// the stream stays usable after such an error.
	Next() (progress.Message, error)
	// Close releases the subscription and unblocks a pending Next.
	Close() error
}

// Transport opens progress streams. Implementations exist for websockets
// and server-sent events.
type Transport interface {
	Dial(ctx context.Context, requestID string) (Stream, error)
}

// URLFunc resolves the endpoint of a request's progress stream.
type URLFunc func(requestID string) (string, error)
