package ofp

import (
	"encoding/binary"
	"fmt"
)

// ReplyClass tags a message with the category the correlator matches on.
// Two messages correlate only when their ReplyClass, Version, and XID agree —
// this is finer-grained than Type because every OFPT_STATS_REPLY shares one
// wire type but several distinct reply classes (desc, table, port, queue).
type ReplyClass uint8

const (
	ReplyClassNone ReplyClass = iota
	ReplyClassFeatures
	ReplyClassGetConfig
	ReplyClassBarrier
	ReplyClassQueueGetConfig
	ReplyClassDescStats
	ReplyClassFlowStats
	ReplyClassAggregateStats
	ReplyClassTableStats
	ReplyClassPortStats
	ReplyClassQueueStats
)

// Port describes one switch port as carried in FEATURES_REPLY and PORT_STATUS.
type Port struct {
	PortNo uint16
	HWAddr [6]byte
	Name   string
	Config uint32
	State  uint32
}

// Header is the decoded fixed 8-byte OpenFlow header.
type Header struct {
	Version Version
	Type    Type
	Length  uint16
	XID     uint32
}

// ParseHeader extracts (version, type, length, xid) from the front of buf.
// buf must have at least HeaderSize bytes; callers (the datapath recv loop)
// are responsible for buffering until that much is available.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("ofp: short header: have %d bytes, need %d", len(buf), HeaderSize)
	}
	return Header{
		Version: Version(buf[0]),
		Type:    Type(buf[1]),
		Length:  binary.BigEndian.Uint16(buf[2:4]),
		XID:     binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

// Message is the decoded, typed envelope the rest of the runtime passes
// around. Body holds one of the *Body types declared in this package,
// selected by Type. Buf holds the serialized wire bytes: Encode fills it for
// an outgoing message, and Decode sets it to the received bytes.
type Message struct {
	Version Version
	Type    Type
	XID     uint32
	Buf     []byte
	Body    any
}

// HelloBody carries no fields in OpenFlow 1.0.
type HelloBody struct{}

// ErrorBody is an OFPT_ERROR payload: Data echoes the offending message's
// header (and, for BAD_REQUEST, its body) so the correlator can recover the
// original (version, type, length, xid) it was keyed on.
type ErrorBody struct {
	ErrType Type
	Code    uint16
	Data    []byte
}

// EchoBody carries opaque data that must be echoed back unchanged.
type EchoBody struct {
	Data []byte
}

// FeaturesRequestBody carries no fields.
type FeaturesRequestBody struct{}

// FeaturesReplyBody is OFPT_FEATURES_REPLY.
type FeaturesReplyBody struct {
	DatapathID   uint64
	NBuffers     uint32
	NTables      uint8
	Capabilities uint32
	Actions      uint32
	Ports        []Port
}

// GetConfigRequestBody carries no fields.
type GetConfigRequestBody struct{}

// SetConfigBody is OFPT_SET_CONFIG / OFPT_GET_CONFIG_REPLY.
type SetConfigBody struct {
	Flags       uint16
	MissSendLen uint16
}

// PortStatusBody is OFPT_PORT_STATUS.
type PortStatusBody struct {
	Reason PortReason
	Desc   Port
}

// PacketOutBody is OFPT_PACKET_OUT.
type PacketOutBody struct {
	BufferID uint32
	InPort   uint16
	Actions  []byte
	Data     []byte
}

// FlowModBody is OFPT_FLOW_MOD, trimmed to the fields the runtime's
// convenience constructors need; match/action field layout is out of scope.
type FlowModBody struct {
	Cookie      uint64
	Command     FlowModCommand
	IdleTimeout uint16
	HardTimeout uint16
	Priority    uint16
	BufferID    uint32
	OutPort     uint16
	Flags       uint16
	Match       []byte
	Actions     []byte
}

// BarrierRequestBody / BarrierReplyBody carry no fields.
type BarrierRequestBody struct{}
type BarrierReplyBody struct{}

// StatsRequestBody is OFPT_STATS_REQUEST.
type StatsRequestBody struct {
	StatsType StatsType
	Flags     uint16
	Body      []byte
}

// StatsReplyBody is OFPT_STATS_REPLY. Body is the raw per-fragment payload;
// the correlator returns the fragments of a multi-part sequence as a list in
// arrival order and does not join their bodies.
type StatsReplyBody struct {
	StatsType StatsType
	Flags     uint16
	Body      []byte
}

// QueueGetConfigRequestBody is OFPT_QUEUE_GET_CONFIG_REQUEST.
type QueueGetConfigRequestBody struct {
	PortNo uint16
}

// QueueGetConfigReplyBody is OFPT_QUEUE_GET_CONFIG_REPLY.
type QueueGetConfigReplyBody struct {
	PortNo uint16
	Queues []byte
}

// ReplyClassOf returns the reply class a request of the given type (and, for
// stats requests, stats type) expects on its reply, or ReplyClassNone if the
// type is not requestable. Used both to tag outgoing requests for the
// correlator and to tag incoming replies so the two sides compare equal.
func ReplyClassOf(t Type, st StatsType) ReplyClass {
	switch t {
	case TypeFeaturesRequest, TypeFeaturesReply:
		return ReplyClassFeatures
	case TypeGetConfigRequest, TypeGetConfigReply:
		return ReplyClassGetConfig
	case TypeBarrierRequest, TypeBarrierReply:
		return ReplyClassBarrier
	case TypeQueueGetConfigRequest, TypeQueueGetConfigReply:
		return ReplyClassQueueGetConfig
	case TypeStatsRequest, TypeStatsReply:
		switch st {
		case StatsTypeDesc:
			return ReplyClassDescStats
		case StatsTypeFlow:
			return ReplyClassFlowStats
		case StatsTypeAggregate:
			return ReplyClassAggregateStats
		case StatsTypeTable:
			return ReplyClassTableStats
		case StatsTypePort:
			return ReplyClassPortStats
		case StatsTypeQueue:
			return ReplyClassQueueStats
		}
	}
	return ReplyClassNone
}

// ReplyClass returns this message's own reply class, derived from its Type
// and (for stats messages) its StatsType.
func (m *Message) ReplyClass() ReplyClass {
	switch b := m.Body.(type) {
	case *StatsRequestBody:
		return ReplyClassOf(m.Type, b.StatsType)
	case *StatsReplyBody:
		return ReplyClassOf(m.Type, b.StatsType)
	default:
		return ReplyClassOf(m.Type, 0)
	}
}

// IsLastFragment reports whether this message is the final fragment of a
// (possibly multi-part) reply. Non-stats replies are always complete in one
// fragment; stats replies are complete when OFPSF_REPLY_MORE is clear.
func (m *Message) IsLastFragment() bool {
	sr, ok := m.Body.(*StatsReplyBody)
	if !ok {
		return true
	}
	return sr.Flags&StatsReplyMore == 0
}
