package event

import "errors"

// ErrQueueClosed is returned by Enqueue once the queue has been closed at
// connection teardown; callers treat it as "silently dropped" per the queue's
// dead-entity semantics.
var ErrQueueClosed = errors.New("event: queue is closed")
