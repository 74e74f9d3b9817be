package datapath

import "errors"

var (
	// ErrNotActive is returned by Send once a Datapath has gone inactive.
	ErrNotActive = errors.New("datapath: connection is not active")

	// ErrSendQueueFull is returned by Send when the send queue's backlog
	// exceeds its configured capacity — the peer is not draining fast enough.
	ErrSendQueueFull = errors.New("datapath: send queue is full")

	// ErrUnsupportedVersion is returned when a peer's HELLO carries no
	// version this controller and the peer both understand.
	ErrUnsupportedVersion = errors.New("datapath: no common protocol version")
)
