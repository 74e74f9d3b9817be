package datapath

import "github.com/ofswitch/controller/ofp"

// Convenience constructors (spec.md §4.2): thin wrappers that build the
// correct typed message for the datapath's negotiated version and enqueue
// its serialized form on the send queue. None of these wait for a reply —
// use a Correlator for request/response semantics.

// PacketOut sends an OFPT_PACKET_OUT.
func (dp *Datapath) PacketOut(bufferID uint32, inPort uint16, actions, data []byte) error {
	return dp.Send(ofp.NewPacketOut(dp.NegotiatedVersion(), bufferID, inPort, actions, data))
}

// FlowMod sends an OFPT_FLOW_MOD with the given command.
func (dp *Datapath) FlowMod(match []byte, cookie uint64, command ofp.FlowModCommand,
	idleTimeout, hardTimeout, priority uint16, bufferID uint32, outPort, flags uint16, actions []byte,
) error {
	return dp.Send(ofp.NewFlowMod(dp.NegotiatedVersion(), match, cookie, command,
		idleTimeout, hardTimeout, priority, bufferID, outPort, flags, actions))
}

// FlowDel sends an OFPT_FLOW_MOD/OFPFC_DELETE for the given match.
func (dp *Datapath) FlowDel(match []byte, outPort uint16) error {
	return dp.Send(ofp.NewFlowMod(dp.NegotiatedVersion(), match, 0, ofp.FlowModDelete,
		0, 0, 0, 0, outPort, 0, nil))
}

// DeleteAllFlows sends the wildcard-match FLOW_MOD/OFPFC_DELETE used to clear
// a switch's table, typically from a CONFIG_HOOK handler.
func (dp *Datapath) DeleteAllFlows() error {
	return dp.Send(ofp.NewDeleteAllFlows(dp.NegotiatedVersion()))
}

// SetConfig sends an OFPT_SET_CONFIG.
func (dp *Datapath) SetConfig(flags, missSendLen uint16) error {
	return dp.Send(ofp.NewSetConfig(dp.NegotiatedVersion(), flags, missSendLen))
}

// Barrier sends an OFPT_BARRIER_REQUEST.
func (dp *Datapath) Barrier() error {
	return dp.Send(ofp.NewBarrierRequest(dp.NegotiatedVersion()))
}

// RequestDescStats sends an OFPST_DESC stats request.
func (dp *Datapath) RequestDescStats() error {
	return dp.Send(ofp.NewDescStatsRequest(dp.NegotiatedVersion()))
}

// RequestTableStats sends an OFPST_TABLE stats request.
func (dp *Datapath) RequestTableStats() error {
	return dp.Send(ofp.NewTableStatsRequest(dp.NegotiatedVersion()))
}

// RequestPortStats sends an OFPST_PORT stats request for portNo (ofp.PortNone
// for all ports).
func (dp *Datapath) RequestPortStats(portNo uint16) error {
	return dp.Send(ofp.NewPortStatsRequest(dp.NegotiatedVersion(), portNo))
}

// RequestQueueStats sends an OFPST_QUEUE stats request for one port/queue pair.
func (dp *Datapath) RequestQueueStats(portNo uint16, queueID uint32) error {
	return dp.Send(ofp.NewQueueStatsRequest(dp.NegotiatedVersion(), portNo, queueID))
}

// RequestQueueConfig sends an OFPT_QUEUE_GET_CONFIG_REQUEST for portNo.
func (dp *Datapath) RequestQueueConfig(portNo uint16) error {
	return dp.Send(ofp.NewQueueGetConfigRequest(dp.NegotiatedVersion(), portNo))
}
