package handshake_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofswitch/controller/datapath"
	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/handshake"
	"github.com/ofswitch/controller/ofp"
)

// readMessage reads and decodes one full message from the switch's side of
// the pipe.
func readMessage(t *testing.T, conn net.Conn) *ofp.Message {
	t.Helper()
	hdr := make([]byte, ofp.HeaderSize)
	_, err := io.ReadFull(conn, hdr)
	require.NoError(t, err)
	h, err := ofp.ParseHeader(hdr)
	require.NoError(t, err)
	buf := make([]byte, h.Length)
	copy(buf, hdr)
	_, err = io.ReadFull(conn, buf[ofp.HeaderSize:])
	require.NoError(t, err)
	msg, err := ofp.Decode(h.Version, h.Type, h.Length, h.XID, buf)
	require.NoError(t, err)
	return msg
}

func writeMessage(t *testing.T, conn net.Conn, msg *ofp.Message, xid uint32) {
	t.Helper()
	msg.XID = xid
	buf, err := ofp.Encode(msg)
	require.NoError(t, err)
	_, err = conn.Write(buf)
	require.NoError(t, err)
}

// newHandshakingDatapath starts a served Datapath on the HANDSHAKE phase and
// returns the switch's side of the pipe plus a channel that receives the
// datapath once it enters MAIN.
func newHandshakingDatapath(t *testing.T, phases *handshake.Phases) (*datapath.Datapath, net.Conn, chan *datapath.Datapath) {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	entered := make(chan *datapath.Datapath, 1)
	phases.OnMainEntry = func(dp *datapath.Datapath) { entered <- dp }
	phases.Start()

	eq := event.NewQueue("dp", nil, nil)
	eq.SetDispatcher(phases.Handshake)
	dp := datapath.New(server, eq, []ofp.Version{ofp.Version10}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	drainDone := make(chan struct{})
	serveDone := make(chan struct{})
	go func() { defer close(drainDone); _ = eq.Run(ctx) }()
	go func() { defer close(serveDone); _ = dp.Serve(ctx, phases.Dead) }()
	t.Cleanup(func() {
		cancel()
		<-serveDone
		eq.Close()
		<-drainDone
	})

	return dp, client, entered
}

// TestHandshake_HappyPathReachesMain scripts the switch side of a complete
// handshake and asserts the controller's outgoing message order (HELLO,
// FEATURES_REQUEST, DESC stats request, BARRIER_REQUEST) as well as the final
// state: queue on MAIN, version negotiated, features and description stored.
func TestHandshake_HappyPathReachesMain(t *testing.T) {
	phases := handshake.New(nil)
	dp, client, entered := newHandshakingDatapath(t, phases)

	hello := readMessage(t, client)
	assert.Equal(t, ofp.TypeHello, hello.Type)
	writeMessage(t, client, ofp.NewHello(ofp.Version10), 99)

	featuresReq := readMessage(t, client)
	require.Equal(t, ofp.TypeFeaturesRequest, featuresReq.Type)
	writeMessage(t, client, &ofp.Message{
		Version: ofp.Version10,
		Type:    ofp.TypeFeaturesReply,
		Body: &ofp.FeaturesReplyBody{
			DatapathID: 0xabcdef,
			NTables:    4,
			Ports:      []ofp.Port{{PortNo: 1, Name: "eth0"}},
		},
	}, featuresReq.XID)

	descReq := readMessage(t, client)
	require.Equal(t, ofp.TypeStatsRequest, descReq.Type)
	require.Equal(t, ofp.StatsTypeDesc, descReq.Body.(*ofp.StatsRequestBody).StatsType)
	writeMessage(t, client, &ofp.Message{
		Version: ofp.Version10,
		Type:    ofp.TypeStatsReply,
		Body:    &ofp.StatsReplyBody{StatsType: ofp.StatsTypeDesc, Body: []byte("Acme vSwitch")},
	}, descReq.XID)

	barrierReq := readMessage(t, client)
	require.Equal(t, ofp.TypeBarrierRequest, barrierReq.Type)
	writeMessage(t, client, &ofp.Message{
		Version: ofp.Version10,
		Type:    ofp.TypeBarrierReply,
		Body:    &ofp.BarrierReplyBody{},
	}, barrierReq.XID)

	select {
	case got := <-entered:
		assert.Same(t, dp, got)
	case <-time.After(time.Second):
		t.Fatal("handshake never reached MAIN")
	}

	assert.Same(t, phases.Main, dp.EventQueue().CurrentDispatcher())
	assert.Equal(t, ofp.Version10, dp.NegotiatedVersion())
	require.NotNil(t, dp.Features())
	assert.EqualValues(t, 0xabcdef, dp.Features().DatapathID)
	assert.Equal(t, "Acme vSwitch", dp.Desc())
}

// TestHandshake_VersionMismatchSendsHelloFailedAndCloses: a peer advertising
// only a version below everything we support gets an
// ERROR/HELLO_FAILED/INCOMPATIBLE and a closed connection, and never enters
// MAIN.
func TestHandshake_VersionMismatchSendsHelloFailedAndCloses(t *testing.T) {
	phases := handshake.New(nil)
	dp, client, entered := newHandshakingDatapath(t, phases)

	hello := readMessage(t, client)
	require.Equal(t, ofp.TypeHello, hello.Type)
	writeMessage(t, client, ofp.NewHello(ofp.Version(0x00)), 99)

	errMsg := readMessage(t, client)
	require.Equal(t, ofp.TypeError, errMsg.Type)
	body := errMsg.Body.(*ofp.ErrorBody)
	assert.Equal(t, ofp.ErrTypeHelloFailed, body.ErrType)
	assert.Equal(t, ofp.HelloFailedIncompatible, body.Code)

	_, err := client.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.True(t, dp.WaitInactive(time.Second))

	select {
	case <-entered:
		t.Fatal("MAIN entry hook fired for a failed negotiation")
	default:
	}
}

// TestMain_PortStatusMutatesPortTable covers the MAIN-phase port bookkeeping:
// the live table reflects FEATURES_REPLY ports plus PORT_STATUS add/modify
// minus deletes.
func TestMain_PortStatusMutatesPortTable(t *testing.T) {
	phases := handshake.New(nil)

	_, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	eq := event.NewQueue("dp", nil, nil)
	eq.SetDispatcher(phases.Main)
	dp := datapath.New(server, eq, []ofp.Version{ofp.Version10}, nil)
	dp.SetFeatures(&datapath.SwitchFeatures{
		DatapathID: 0x1,
		Ports:      []ofp.Port{{PortNo: 1, Name: "eth0"}},
	})

	status := func(reason ofp.PortReason, port ofp.Port) event.Event {
		return event.NewProtocolMessage(dp, &ofp.Message{
			Version: ofp.Version10,
			Type:    ofp.TypePortStatus,
			Body:    &ofp.PortStatusBody{Reason: reason, Desc: port},
		})
	}

	ctx := context.Background()
	phases.Main.Dispatch(ctx, status(ofp.PortReasonAdd, ofp.Port{PortNo: 2, Name: "eth1"}))
	phases.Main.Dispatch(ctx, status(ofp.PortReasonModify, ofp.Port{PortNo: 1, Name: "eth0", State: 1}))
	phases.Main.Dispatch(ctx, status(ofp.PortReasonDelete, ofp.Port{PortNo: 2, Name: "eth1"}))

	ports := dp.Ports()
	require.Len(t, ports, 1)
	assert.EqualValues(t, 1, ports[0].PortNo)
	assert.EqualValues(t, 1, ports[0].State)
}
