// Package datapath implements the per-switch connection actor: a Datapath
// owns one TCP socket to an OpenFlow switch, a decoded-message queue feeding
// an event queue, and a serialized-bytes send queue, driven by three
// cooperating tasks (recv, send, event-drain) per Serve call.
//
// A Datapath never interprets message semantics itself — decoding is ofp's
// job and phase advancement is handshake's — it only owns the socket, the
// queues, and the mutable connection state (active flag, xid, negotiated
// version, datapath id, ports, features) that every phase handler reads or
// writes.
package datapath
