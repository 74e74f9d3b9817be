package datapath

import "github.com/ofswitch/controller/ofp"

// SwitchFeatures is an immutable snapshot of a FEATURES_REPLY, stored on the
// Datapath once the switch-features phase completes. datapathId and ports
// are undefined before that point; handlers in earlier phases must not read
// Features, DatapathID, or Ports.
type SwitchFeatures struct {
	DatapathID   uint64
	NBuffers     uint32
	NTables      uint8
	Capabilities uint32
	Actions      uint32
	Ports        []ofp.Port
}

// FeaturesFromReply builds a SwitchFeatures snapshot from a decoded
// FEATURES_REPLY body.
func FeaturesFromReply(b *ofp.FeaturesReplyBody) *SwitchFeatures {
	return &SwitchFeatures{
		DatapathID:   b.DatapathID,
		NBuffers:     b.NBuffers,
		NTables:      b.NTables,
		Capabilities: b.Capabilities,
		Actions:      b.Actions,
		Ports:        append([]ofp.Port(nil), b.Ports...),
	}
}
