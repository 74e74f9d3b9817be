package correlator_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofswitch/controller/correlator"
	"github.com/ofswitch/controller/datapath"
	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/ofp"
)

type testFixture struct {
	dp      *datapath.Datapath
	corr    *correlator.Correlator
	main    *event.Dispatcher
	changes *event.Dispatcher
	dead    *event.Dispatcher
}

// newTestFixture wires a Datapath to a MAIN/DEAD phase pair and a Correlator
// bound the same way main.go wires the real thing, without spawning the
// recv/send/event-drain tasks — these tests dispatch events directly rather
// than driving bytes through a socket.
func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	_, serverConn := net.Pipe()
	t.Cleanup(func() { _ = serverConn.Close() })

	inh := event.NewInheritable()
	main := event.NewDispatcher("MAIN", inh, nil)
	dead := event.NewDispatcher("DEAD", inh, nil)
	changes := event.NewDispatcher("CHANGES", nil, nil)

	corr := correlator.New(nil)
	corr.BindInheritable(inh)
	corr.BindChanges(changes, dead)

	eq := event.NewQueue("dp", nil, nil)
	eq.SetDispatcher(main)

	dp := datapath.New(serverConn, eq, []ofp.Version{ofp.Version10}, nil)
	dp.SetNegotiatedVersion(ofp.Version10)

	return &testFixture{dp: dp, corr: corr, main: main, changes: changes, dead: dead}
}

func statsRequest(dp *datapath.Datapath) *ofp.Message {
	return ofp.NewTableStatsRequest(dp.NegotiatedVersion())
}

func TestSendRequest_SingleReplyCompletes(t *testing.T) {
	f := newTestFixture(t)

	replyCh := make(chan *ofp.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		reply, err := f.corr.SendRequest(context.Background(), f.dp, ofp.NewFeaturesRequest(f.dp.NegotiatedVersion()), time.Second)
		replyCh <- reply
		errCh <- err
	}()

	// The request's xid is assigned at serialize time (the first xid this
	// fixture's datapath ever assigns is 1); feed a matching reply once the
	// goroutine above has had a chance to register it.
	time.Sleep(10 * time.Millisecond)

	reply := &ofp.Message{
		Version: f.dp.NegotiatedVersion(),
		Type:    ofp.TypeFeaturesReply,
		XID:     1,
		Body: &ofp.FeaturesReplyBody{
			DatapathID: 0x42,
		},
	}
	f.main.Dispatch(context.Background(), event.NewProtocolMessage(f.dp, reply))

	got := <-replyCh
	err := <-errCh
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint32(1), got.XID)
}

func TestSendStatsRequest_AggregatesFragmentsInOrder(t *testing.T) {
	f := newTestFixture(t)

	resultCh := make(chan []*ofp.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		msgs, err := f.corr.SendStatsRequest(context.Background(), f.dp, statsRequest(f.dp), time.Second)
		resultCh <- msgs
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)

	frag := func(body []byte, more bool) *ofp.Message {
		flags := uint16(0)
		if more {
			flags = ofp.StatsReplyMore
		}
		return &ofp.Message{
			Version: f.dp.NegotiatedVersion(),
			Type:    ofp.TypeStatsReply,
			XID:     1,
			Body:    &ofp.StatsReplyBody{StatsType: ofp.StatsTypeTable, Flags: flags, Body: body},
		}
	}

	f.main.Dispatch(context.Background(), event.NewProtocolMessage(f.dp, frag([]byte("a"), true)))
	f.main.Dispatch(context.Background(), event.NewProtocolMessage(f.dp, frag([]byte("b"), true)))
	f.main.Dispatch(context.Background(), event.NewProtocolMessage(f.dp, frag([]byte("c"), false)))

	msgs := <-resultCh
	err := <-errCh
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []byte("a"), msgs[0].Body.(*ofp.StatsReplyBody).Body)
	assert.Equal(t, []byte("b"), msgs[1].Body.(*ofp.StatsReplyBody).Body)
	assert.Equal(t, []byte("c"), msgs[2].Body.(*ofp.StatsReplyBody).Body)

	// A fourth fragment sharing the same xid must not be accepted: the entry
	// was unregistered on the last fragment. There is no observable effect to
	// assert here beyond "this does not panic or deadlock" since a discarded
	// late reply is silent by design (spec.md §4.4).
	f.main.Dispatch(context.Background(), event.NewProtocolMessage(f.dp, frag([]byte("late"), false)))
}

func TestSendRequest_ErrorMatchedByOffendingHeader(t *testing.T) {
	f := newTestFixture(t)

	req := ofp.NewBarrierRequest(f.dp.NegotiatedVersion())

	errCh := make(chan error, 1)
	go func() {
		_, err := f.corr.SendRequest(context.Background(), f.dp, req, time.Second)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)

	offendingHeader := make([]byte, ofp.HeaderSize)
	offendingHeader[0] = byte(f.dp.NegotiatedVersion())
	offendingHeader[1] = byte(ofp.TypeBarrierRequest)
	offendingHeader[2] = byte(len(req.Buf) >> 8)
	offendingHeader[3] = byte(len(req.Buf))
	offendingHeader[4] = byte(req.XID >> 24)
	offendingHeader[5] = byte(req.XID >> 16)
	offendingHeader[6] = byte(req.XID >> 8)
	offendingHeader[7] = byte(req.XID)

	errMsg := &ofp.Message{
		Version: f.dp.NegotiatedVersion(),
		Type:    ofp.TypeError,
		XID:     req.XID,
		Body: &ofp.ErrorBody{
			ErrType: ofp.ErrTypeBadRequest,
			Code:    7,
			Data:    offendingHeader,
		},
	}

	f.main.Dispatch(context.Background(), event.NewProtocolMessage(f.dp, errMsg))

	err := <-errCh
	require.Error(t, err)
	var ofpErr *correlator.OFPError
	require.ErrorAs(t, err, &ofpErr)
	assert.Equal(t, ofp.ErrTypeBadRequest, ofpErr.Type)
	assert.EqualValues(t, 7, ofpErr.Code)
}

func TestSendRequest_TimesOutWithNoReply(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.corr.SendRequest(context.Background(), f.dp, ofp.NewBarrierRequest(f.dp.NegotiatedVersion()), 20*time.Millisecond)
	assert.ErrorIs(t, err, correlator.ErrTimeout)
}

func TestSendRequest_DatapathDeathCompletesPendingWithDisconnected(t *testing.T) {
	f := newTestFixture(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.corr.SendStatsRequest(context.Background(), f.dp, statsRequest(f.dp), time.Second)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)

	f.changes.Dispatch(context.Background(), event.NewDispatcherChanged(f.dp.EventQueue(), f.main, f.dead))

	err := <-errCh
	assert.ErrorIs(t, err, correlator.ErrDatapathDisconnected)
}
