package ofp

import (
	"encoding/binary"
	"fmt"
)

// portWireSize is the encoded size of one Port entry.
const portWireSize = 2 + 6 + 16 + 4 + 4

// Decode turns a header plus its body bytes into a typed Message. length is
// the header's total-length field (header included); buf must hold exactly
// that many bytes. The datapath back-reference named in spec.md §3 is not
// part of the codec's contract — callers attach it when they wrap the
// decoded Message in a ProtocolMessage event.
func Decode(version Version, typ Type, length uint16, xid uint32, buf []byte) (*Message, error) {
	if len(buf) != int(length) {
		return nil, fmt.Errorf("ofp: decode: buf length %d does not match header length %d", len(buf), length)
	}
	body := buf[HeaderSize:]

	m := &Message{Version: version, Type: typ, XID: xid, Buf: buf}

	switch typ {
	case TypeHello:
		m.Body = &HelloBody{}
	case TypeError:
		if len(body) < 4 {
			return nil, fmt.Errorf("ofp: short error body")
		}
		m.Body = &ErrorBody{
			ErrType: Type(binary.BigEndian.Uint16(body[0:2])),
			Code:    binary.BigEndian.Uint16(body[2:4]),
			Data:    append([]byte(nil), body[4:]...),
		}
	case TypeEchoRequest, TypeEchoReply:
		m.Body = &EchoBody{Data: append([]byte(nil), body...)}
	case TypeFeaturesRequest:
		m.Body = &FeaturesRequestBody{}
	case TypeFeaturesReply:
		fb, err := decodeFeaturesReply(body)
		if err != nil {
			return nil, err
		}
		m.Body = fb
	case TypeGetConfigRequest:
		m.Body = &GetConfigRequestBody{}
	case TypeGetConfigReply, TypeSetConfig:
		if len(body) < 4 {
			return nil, fmt.Errorf("ofp: short config body")
		}
		m.Body = &SetConfigBody{
			Flags:       binary.BigEndian.Uint16(body[0:2]),
			MissSendLen: binary.BigEndian.Uint16(body[2:4]),
		}
	case TypePortStatus:
		ps, err := decodePortStatus(body)
		if err != nil {
			return nil, err
		}
		m.Body = ps
	case TypePacketOut:
		po, err := decodePacketOut(body)
		if err != nil {
			return nil, err
		}
		m.Body = po
	case TypeFlowMod:
		fm, err := decodeFlowMod(body)
		if err != nil {
			return nil, err
		}
		m.Body = fm
	case TypeBarrierRequest:
		m.Body = &BarrierRequestBody{}
	case TypeBarrierReply:
		m.Body = &BarrierReplyBody{}
	case TypeStatsRequest:
		sr, err := decodeStatsRequest(body)
		if err != nil {
			return nil, err
		}
		m.Body = sr
	case TypeStatsReply:
		sr, err := decodeStatsReply(body)
		if err != nil {
			return nil, err
		}
		m.Body = sr
	case TypeQueueGetConfigRequest:
		if len(body) < 2 {
			return nil, fmt.Errorf("ofp: short queue-get-config-request body")
		}
		m.Body = &QueueGetConfigRequestBody{PortNo: binary.BigEndian.Uint16(body[0:2])}
	case TypeQueueGetConfigReply:
		if len(body) < 2 {
			return nil, fmt.Errorf("ofp: short queue-get-config-reply body")
		}
		m.Body = &QueueGetConfigReplyBody{
			PortNo: binary.BigEndian.Uint16(body[0:2]),
			Queues: append([]byte(nil), body[2:]...),
		}
	default:
		return nil, fmt.Errorf("ofp: unknown message type %d", typ)
	}

	return m, nil
}

// Encode serializes msg, writing the result into msg.Buf and returning it.
// The xid and length header fields are filled from msg.XID (assumed already
// assigned by the caller) and the computed body length.
func Encode(msg *Message) ([]byte, error) {
	body, err := encodeBody(msg.Body)
	if err != nil {
		return nil, err
	}

	total := HeaderSize + len(body)
	buf := make([]byte, total)
	buf[0] = byte(msg.Version)
	buf[1] = byte(msg.Type)
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	binary.BigEndian.PutUint32(buf[4:8], msg.XID)
	copy(buf[HeaderSize:], body)

	msg.Buf = buf
	return buf, nil
}

// encodeBody serializes a body value. msg.Type (set by the message
// constructors in messages.go) disambiguates body shapes shared by more than
// one wire type — EchoBody (request/reply) and SetConfigBody
// (set-config/get-config-reply) — so it is not re-derived here.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case *HelloBody, nil:
		return nil, nil
	case *EchoBody:
		return b.Data, nil
	case *ErrorBody:
		buf := make([]byte, 4+len(b.Data))
		binary.BigEndian.PutUint16(buf[0:2], uint16(b.ErrType))
		binary.BigEndian.PutUint16(buf[2:4], b.Code)
		copy(buf[4:], b.Data)
		return buf, nil
	case *FeaturesRequestBody:
		return nil, nil
	case *FeaturesReplyBody:
		return encodeFeaturesReply(b), nil
	case *GetConfigRequestBody:
		return nil, nil
	case *SetConfigBody:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint16(buf[0:2], b.Flags)
		binary.BigEndian.PutUint16(buf[2:4], b.MissSendLen)
		return buf, nil
	case *PortStatusBody:
		return encodePortStatus(b), nil
	case *PacketOutBody:
		return encodePacketOut(b), nil
	case *FlowModBody:
		return encodeFlowMod(b), nil
	case *BarrierRequestBody:
		return nil, nil
	case *BarrierReplyBody:
		return nil, nil
	case *StatsRequestBody:
		return encodeStatsRequest(b), nil
	case *StatsReplyBody:
		return encodeStatsReply(b), nil
	case *QueueGetConfigRequestBody:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, b.PortNo)
		return buf, nil
	case *QueueGetConfigReplyBody:
		buf := make([]byte, 2+len(b.Queues))
		binary.BigEndian.PutUint16(buf[0:2], b.PortNo)
		copy(buf[2:], b.Queues)
		return buf, nil
	default:
		return nil, fmt.Errorf("ofp: encode: unsupported body type %T", body)
	}
}

func encodePort(p Port) []byte {
	buf := make([]byte, portWireSize)
	binary.BigEndian.PutUint16(buf[0:2], p.PortNo)
	copy(buf[2:8], p.HWAddr[:])
	nameBuf := [16]byte{}
	copy(nameBuf[:], p.Name)
	copy(buf[8:24], nameBuf[:])
	binary.BigEndian.PutUint32(buf[24:28], p.Config)
	binary.BigEndian.PutUint32(buf[28:32], p.State)
	return buf
}

func decodePort(buf []byte) (Port, error) {
	if len(buf) < portWireSize {
		return Port{}, fmt.Errorf("ofp: short port entry")
	}
	var p Port
	p.PortNo = binary.BigEndian.Uint16(buf[0:2])
	copy(p.HWAddr[:], buf[2:8])
	end := 8
	for end < 24 && buf[end] != 0 {
		end++
	}
	p.Name = string(buf[8:end])
	p.Config = binary.BigEndian.Uint32(buf[24:28])
	p.State = binary.BigEndian.Uint32(buf[28:32])
	return p, nil
}

func encodeFeaturesReply(b *FeaturesReplyBody) []byte {
	buf := make([]byte, 21+len(b.Ports)*portWireSize)
	binary.BigEndian.PutUint64(buf[0:8], b.DatapathID)
	binary.BigEndian.PutUint32(buf[8:12], b.NBuffers)
	buf[12] = b.NTables
	binary.BigEndian.PutUint32(buf[13:17], b.Capabilities)
	binary.BigEndian.PutUint32(buf[17:21], b.Actions)
	off := 21
	for _, p := range b.Ports {
		copy(buf[off:], encodePort(p))
		off += portWireSize
	}
	return buf
}

func decodeFeaturesReply(body []byte) (*FeaturesReplyBody, error) {
	if len(body) < 21 {
		return nil, fmt.Errorf("ofp: short features-reply body")
	}
	fb := &FeaturesReplyBody{
		DatapathID:   binary.BigEndian.Uint64(body[0:8]),
		NBuffers:     binary.BigEndian.Uint32(body[8:12]),
		NTables:      body[12],
		Capabilities: binary.BigEndian.Uint32(body[13:17]),
		Actions:      binary.BigEndian.Uint32(body[17:21]),
	}
	rest := body[21:]
	for len(rest) >= portWireSize {
		p, err := decodePort(rest[:portWireSize])
		if err != nil {
			return nil, err
		}
		fb.Ports = append(fb.Ports, p)
		rest = rest[portWireSize:]
	}
	return fb, nil
}

func encodePortStatus(b *PortStatusBody) []byte {
	buf := make([]byte, 1+portWireSize)
	buf[0] = byte(b.Reason)
	copy(buf[1:], encodePort(b.Desc))
	return buf
}

func decodePortStatus(body []byte) (*PortStatusBody, error) {
	if len(body) < 1+portWireSize {
		return nil, fmt.Errorf("ofp: short port-status body")
	}
	p, err := decodePort(body[1 : 1+portWireSize])
	if err != nil {
		return nil, err
	}
	return &PortStatusBody{Reason: PortReason(body[0]), Desc: p}, nil
}

func encodePacketOut(b *PacketOutBody) []byte {
	buf := make([]byte, 8+len(b.Actions)+len(b.Data))
	binary.BigEndian.PutUint32(buf[0:4], b.BufferID)
	binary.BigEndian.PutUint16(buf[4:6], b.InPort)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(b.Actions)))
	copy(buf[8:], b.Actions)
	copy(buf[8+len(b.Actions):], b.Data)
	return buf
}

func decodePacketOut(body []byte) (*PacketOutBody, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("ofp: short packet-out body")
	}
	actionsLen := int(binary.BigEndian.Uint16(body[6:8]))
	if len(body) < 8+actionsLen {
		return nil, fmt.Errorf("ofp: truncated packet-out actions")
	}
	return &PacketOutBody{
		BufferID: binary.BigEndian.Uint32(body[0:4]),
		InPort:   binary.BigEndian.Uint16(body[4:6]),
		Actions:  append([]byte(nil), body[8:8+actionsLen]...),
		Data:     append([]byte(nil), body[8+actionsLen:]...),
	}, nil
}

func encodeFlowMod(b *FlowModBody) []byte {
	buf := make([]byte, 24+len(b.Match)+len(b.Actions))
	binary.BigEndian.PutUint64(buf[0:8], b.Cookie)
	buf[8] = byte(b.Command)
	binary.BigEndian.PutUint16(buf[9:11], b.IdleTimeout)
	binary.BigEndian.PutUint16(buf[11:13], b.HardTimeout)
	binary.BigEndian.PutUint16(buf[13:15], b.Priority)
	binary.BigEndian.PutUint32(buf[15:19], b.BufferID)
	binary.BigEndian.PutUint16(buf[19:21], b.OutPort)
	binary.BigEndian.PutUint16(buf[21:23], b.Flags)
	buf[23] = byte(len(b.Match))
	off := 24
	copy(buf[off:], b.Match)
	off += len(b.Match)
	copy(buf[off:], b.Actions)
	return buf
}

func decodeFlowMod(body []byte) (*FlowModBody, error) {
	if len(body) < 24 {
		return nil, fmt.Errorf("ofp: short flow-mod body")
	}
	matchLen := int(body[23])
	if len(body) < 24+matchLen {
		return nil, fmt.Errorf("ofp: truncated flow-mod match")
	}
	return &FlowModBody{
		Cookie:      binary.BigEndian.Uint64(body[0:8]),
		Command:     FlowModCommand(body[8]),
		IdleTimeout: binary.BigEndian.Uint16(body[9:11]),
		HardTimeout: binary.BigEndian.Uint16(body[11:13]),
		Priority:    binary.BigEndian.Uint16(body[13:15]),
		BufferID:    binary.BigEndian.Uint32(body[15:19]),
		OutPort:     binary.BigEndian.Uint16(body[19:21]),
		Flags:       binary.BigEndian.Uint16(body[21:23]),
		Match:       append([]byte(nil), body[24:24+matchLen]...),
		Actions:     append([]byte(nil), body[24+matchLen:]...),
	}, nil
}

func encodeStatsRequest(b *StatsRequestBody) []byte {
	buf := make([]byte, 4+len(b.Body))
	binary.BigEndian.PutUint16(buf[0:2], uint16(b.StatsType))
	binary.BigEndian.PutUint16(buf[2:4], b.Flags)
	copy(buf[4:], b.Body)
	return buf
}

func decodeStatsRequest(body []byte) (*StatsRequestBody, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("ofp: short stats-request body")
	}
	return &StatsRequestBody{
		StatsType: StatsType(binary.BigEndian.Uint16(body[0:2])),
		Flags:     binary.BigEndian.Uint16(body[2:4]),
		Body:      append([]byte(nil), body[4:]...),
	}, nil
}

func encodeStatsReply(b *StatsReplyBody) []byte {
	buf := make([]byte, 4+len(b.Body))
	binary.BigEndian.PutUint16(buf[0:2], uint16(b.StatsType))
	binary.BigEndian.PutUint16(buf[2:4], b.Flags)
	copy(buf[4:], b.Body)
	return buf
}

func decodeStatsReply(body []byte) (*StatsReplyBody, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("ofp: short stats-reply body")
	}
	return &StatsReplyBody{
		StatsType: StatsType(binary.BigEndian.Uint16(body[0:2])),
		Flags:     binary.BigEndian.Uint16(body[2:4]),
		Body:      append([]byte(nil), body[4:]...),
	}, nil
}
