// Package ofp implements the OpenFlow 1.0 wire boundary: header extraction,
// message decode/encode, and the reply-class tagging the correlator keys on.
//
// The runtime in event, datapath, handshake, and correlator treats this package
// as an opaque codec — none of those packages inspect message field layout
// directly, only the Message envelope (version, type, length, xid, reply class)
// and the typed payload accessors declared here. Only the subset of OFPT_*
// message types needed to drive the handshake, echo/error handling, barrier,
// port-status, and stats request/reply paths is implemented; flow-table entry
// encoding (match/action field layout) is out of scope, matching spec.md's
// Non-goal of flow-table management policy.
package ofp
