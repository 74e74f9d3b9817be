package ofp

// Version identifies an OpenFlow wire protocol version.
type Version uint8

// Version10 is the only wire version this codec understands.
const Version10 Version = 0x01

// Type is the OFPT_* message type carried in the wire header.
type Type uint8

const (
	TypeHello Type = iota
	TypeError
	TypeEchoRequest
	TypeEchoReply
	TypeVendor
	TypeFeaturesRequest
	TypeFeaturesReply
	TypeGetConfigRequest
	TypeGetConfigReply
	TypeSetConfig
	TypePacketIn
	TypeFlowRemoved
	TypePortStatus
	TypePacketOut
	TypeFlowMod
	TypePortMod
	TypeStatsRequest
	TypeStatsReply
	TypeBarrierRequest
	TypeBarrierReply
	TypeQueueGetConfigRequest
	TypeQueueGetConfigReply
)

// HeaderSize is the fixed OpenFlow 1.0 header length in bytes.
const HeaderSize = 8

// MsgSizeMax bounds a single OpenFlow message, matching the original's
// OFP_MSG_SIZE_MAX so the recv loop can size its read buffer sensibly.
const MsgSizeMax = 1 << 16

// MaxXID is the transaction-id wrap boundary (full 32-bit space).
const MaxXID uint32 = 0xffffffff

// Error types/codes used by the handshake and error-matching paths.
const (
	ErrTypeHelloFailed Type = 0
	ErrTypeBadRequest  Type = 1
)

const (
	HelloFailedIncompatible uint16 = 0
)

// Stats reply flag bits.
const (
	StatsReplyMore uint16 = 1 << 0
)

// Stats request/reply body types (OFPST_*).
type StatsType uint16

const (
	StatsTypeDesc StatsType = iota
	StatsTypeFlow
	StatsTypeAggregate
	StatsTypeTable
	StatsTypePort
	StatsTypeQueue
	StatsTypeVendor StatsType = 0xffff
)

// Port status change reasons (OFPPR_*).
type PortReason uint8

const (
	PortReasonAdd PortReason = iota
	PortReasonDelete
	PortReasonModify
)

// Flow-mod commands (OFPFC_*), needed only by the convenience wrappers.
type FlowModCommand uint8

const (
	FlowModAdd FlowModCommand = iota
	FlowModModify
	FlowModModifyStrict
	FlowModDelete
	FlowModDeleteStrict
)

// OFPP_NONE: no output port specified.
const PortNone uint16 = 0xffff

// DefaultPort is the standard OpenFlow TCP listen port (6633).
const DefaultPort = 6633
