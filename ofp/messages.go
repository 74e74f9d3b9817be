package ofp

// Constructors below build a *Message with Version/Type/Body set and XID
// left zero, matching the original's MsgBase(xid=None): the datapath
// assigns xid at serialize time unless one is already set (spec.md §4.2).

// NewHello builds an OFPT_HELLO.
func NewHello(version Version) *Message {
	return &Message{Version: version, Type: TypeHello, Body: &HelloBody{}}
}

// NewEchoRequest builds an OFPT_ECHO_REQUEST carrying data to be echoed back.
func NewEchoRequest(version Version, data []byte) *Message {
	return &Message{Version: version, Type: TypeEchoRequest, Body: &EchoBody{Data: data}}
}

// NewEchoReply builds an OFPT_ECHO_REPLY that preserves the request's xid
// and payload; callers set XID explicitly since it must match the request.
func NewEchoReply(version Version, xid uint32, data []byte) *Message {
	return &Message{Version: version, Type: TypeEchoReply, XID: xid, Body: &EchoBody{Data: data}}
}

// NewHelloFailed builds the OFPT_ERROR/OFPET_HELLO_FAILED sent when version
// negotiation fails.
func NewHelloFailed(version Version, code uint16, reason string) *Message {
	return &Message{Version: version, Type: TypeError, Body: &ErrorBody{
		ErrType: ErrTypeHelloFailed,
		Code:    code,
		Data:    []byte(reason),
	}}
}

// NewFeaturesRequest builds an OFPT_FEATURES_REQUEST.
func NewFeaturesRequest(version Version) *Message {
	return &Message{Version: version, Type: TypeFeaturesRequest, Body: &FeaturesRequestBody{}}
}

// NewSetConfig builds an OFPT_SET_CONFIG.
func NewSetConfig(version Version, flags, missSendLen uint16) *Message {
	return &Message{Version: version, Type: TypeSetConfig, Body: &SetConfigBody{
		Flags: flags, MissSendLen: missSendLen,
	}}
}

// NewBarrierRequest builds an OFPT_BARRIER_REQUEST.
func NewBarrierRequest(version Version) *Message {
	return &Message{Version: version, Type: TypeBarrierRequest, Body: &BarrierRequestBody{}}
}

// NewPacketOut builds an OFPT_PACKET_OUT.
func NewPacketOut(version Version, bufferID uint32, inPort uint16, actions, data []byte) *Message {
	return &Message{Version: version, Type: TypePacketOut, Body: &PacketOutBody{
		BufferID: bufferID, InPort: inPort, Actions: actions, Data: data,
	}}
}

// NewFlowMod builds an OFPT_FLOW_MOD.
func NewFlowMod(version Version, match []byte, cookie uint64, command FlowModCommand,
	idleTimeout, hardTimeout, priority uint16, bufferID uint32, outPort, flags uint16, actions []byte,
) *Message {
	return &Message{Version: version, Type: TypeFlowMod, Body: &FlowModBody{
		Cookie:      cookie,
		Command:     command,
		IdleTimeout: idleTimeout,
		HardTimeout: hardTimeout,
		Priority:    priority,
		BufferID:    bufferID,
		OutPort:     outPort,
		Flags:       flags,
		Match:       match,
		Actions:     actions,
	}}
}

// NewDeleteAllFlows builds the wildcard-match FLOW_MOD/OFPFC_DELETE the
// handshake's config hook (or an application) uses to clear a switch's
// table before installing its own policy.
func NewDeleteAllFlows(version Version) *Message {
	return NewFlowMod(version, nil, 0, FlowModDelete, 0, 0, 0, 0, PortNone, 0, nil)
}

// NewStatsRequest builds an OFPT_STATS_REQUEST for the given stats type.
func NewStatsRequest(version Version, statsType StatsType, body []byte) *Message {
	return &Message{Version: version, Type: TypeStatsRequest, Body: &StatsRequestBody{
		StatsType: statsType, Body: body,
	}}
}

// NewDescStatsRequest builds an OFPST_DESC stats request.
func NewDescStatsRequest(version Version) *Message {
	return NewStatsRequest(version, StatsTypeDesc, nil)
}

// NewTableStatsRequest builds an OFPST_TABLE stats request.
func NewTableStatsRequest(version Version) *Message {
	return NewStatsRequest(version, StatsTypeTable, nil)
}

// NewPortStatsRequest builds an OFPST_PORT stats request for portNo (0xffff
// for all ports, matching OFPP_NONE's reuse as "all" in stats requests).
func NewPortStatsRequest(version Version, portNo uint16) *Message {
	buf := make([]byte, 8)
	buf[0] = byte(portNo >> 8)
	buf[1] = byte(portNo)
	return NewStatsRequest(version, StatsTypePort, buf)
}

// NewQueueStatsRequest builds an OFPST_QUEUE stats request for one port/queue pair.
func NewQueueStatsRequest(version Version, portNo uint16, queueID uint32) *Message {
	buf := make([]byte, 8)
	buf[0] = byte(portNo >> 8)
	buf[1] = byte(portNo)
	buf[4] = byte(queueID >> 24)
	buf[5] = byte(queueID >> 16)
	buf[6] = byte(queueID >> 8)
	buf[7] = byte(queueID)
	return NewStatsRequest(version, StatsTypeQueue, buf)
}

// NewQueueGetConfigRequest builds an OFPT_QUEUE_GET_CONFIG_REQUEST.
func NewQueueGetConfigRequest(version Version, portNo uint16) *Message {
	return &Message{Version: version, Type: TypeQueueGetConfigRequest, Body: &QueueGetConfigRequestBody{PortNo: portNo}}
}
