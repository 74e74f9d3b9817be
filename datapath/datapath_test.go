package datapath_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofswitch/controller/datapath"
	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/ofp"
)

// recorder collects ClassProtocolMessage payloads dispatched under a test
// dispatcher, in dispatch order.
type recorder struct {
	mu   sync.Mutex
	msgs []*ofp.Message
}

func (r *recorder) onMessage(_ context.Context, ev event.Event) error {
	payload := ev.Payload.(event.ProtocolMessagePayload)
	r.mu.Lock()
	r.msgs = append(r.msgs, payload.Message.(*ofp.Message))
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []*ofp.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ofp.Message(nil), r.msgs...)
}

func encode(t *testing.T, msg *ofp.Message, xid uint32) []byte {
	t.Helper()
	msg.XID = xid
	buf, err := ofp.Encode(msg)
	require.NoError(t, err)
	return buf
}

// newServedDatapath starts Serve on a fresh net.Pipe, draining the initial
// HELLO it sends on the client side so test writes aren't confused with it.
func newServedDatapath(t *testing.T) (dp *datapath.Datapath, client net.Conn, rec *recorder, wait func()) {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	rec = &recorder{}
	main := event.NewDispatcher("MAIN", nil, nil)
	main.Register(event.ClassProtocolMessage, event.HandlerFunc(rec.onMessage))
	dead := event.NewDispatcher("DEAD", nil, nil)

	eq := event.NewQueue("dp", nil, nil)
	eq.SetDispatcher(main)

	dp = datapath.New(server, eq, []ofp.Version{ofp.Version10}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eq.Run(ctx)
	}()

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- dp.Serve(ctx, dead)
	}()

	// Drain the initial HELLO before the test writes anything else.
	helloBuf := make([]byte, ofp.HeaderSize)
	_, err := readFull(client, helloBuf)
	require.NoError(t, err)

	wait = func() {
		cancel()
		<-serveErrCh
		<-done
	}
	return dp, client, rec, wait
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestServe_DecodesMessagesTheSameRegardlessOfChunking(t *testing.T) {
	req1 := ofp.NewEchoRequest(ofp.Version10, []byte("ping-one"))
	req2 := ofp.NewFeaturesRequest(ofp.Version10)
	buf1 := encode(t, req1, 11)
	buf2 := encode(t, req2, 12)
	wire := append(append([]byte(nil), buf1...), buf2...)

	chunkSizes := []int{1, 3, 7, len(wire)}

	for _, size := range chunkSizes {
		size := size
		t.Run("", func(t *testing.T) {
			_, client, rec, wait := newServedDatapath(t)
			defer wait()

			for off := 0; off < len(wire); off += size {
				end := off + size
				if end > len(wire) {
					end = len(wire)
				}
				_, err := client.Write(wire[off:end])
				require.NoError(t, err)
			}

			require.Eventually(t, func() bool {
				return len(rec.snapshot()) == 2
			}, time.Second, time.Millisecond)

			msgs := rec.snapshot()
			assert.Equal(t, ofp.TypeEchoRequest, msgs[0].Type)
			assert.Equal(t, uint32(11), msgs[0].XID)
			assert.Equal(t, ofp.TypeFeaturesRequest, msgs[1].Type)
			assert.Equal(t, uint32(12), msgs[1].XID)
		})
	}
}

// TestServe_PeerCloseEndsConnectionExactlyOnce covers spec.md §8's "zero-byte
// recv triggers close" scenario: the peer closing its side yields io.EOF from
// conn.Read, Serve returns, and the connection is left inactive with its
// socket closed exactly once (Close is idempotent so a second call is a
// harmless no-op, not a double-close panic).
func TestServe_PeerCloseEndsConnectionExactlyOnce(t *testing.T) {
	dp, client, _, wait := newServedDatapath(t)

	require.NoError(t, client.Close())
	wait()

	assert.False(t, dp.IsActive())
	assert.NoError(t, dp.Close())
}

// TestServe_ContextCancellationUnblocksBlockedRead guards against the
// graceful-shutdown hang: with no bytes in flight and the peer still
// connected, cancelling ctx must still make Serve return promptly by closing
// the socket out from under the blocked conn.Read.
func TestServe_ContextCancellationUnblocksBlockedRead(t *testing.T) {
	_, _, _, wait := newServedDatapath(t)

	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return within 1s of context cancellation")
	}
}

// TestServe_MalformedHeaderLengthClosesConnection: a header whose
// total-length field is shorter than the header itself can never frame a
// message, so the recv loop treats it as a transport error rather than
// re-parsing the same bytes forever.
func TestServe_MalformedHeaderLengthClosesConnection(t *testing.T) {
	dp, client, _, wait := newServedDatapath(t)
	defer wait()

	bad := []byte{byte(ofp.Version10), byte(ofp.TypeHello), 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	_, err := client.Write(bad)
	require.NoError(t, err)

	assert.True(t, dp.WaitInactive(time.Second))
}

func TestCloseAfterSend_FlushesQueuedMessageBeforeClosing(t *testing.T) {
	dp, client, _, wait := newServedDatapath(t)
	defer wait()

	msg := ofp.NewEchoRequest(ofp.Version10, []byte("pong"))
	require.NoError(t, dp.Send(msg))
	require.NoError(t, dp.CloseAfterSend())

	hdr := make([]byte, ofp.HeaderSize)
	_, err := readFull(client, hdr)
	require.NoError(t, err)
	assert.Equal(t, byte(ofp.TypeEchoRequest), hdr[1])

	bodyLen := int(hdr[2])<<8 | int(hdr[3]) - ofp.HeaderSize
	_, err = readFull(client, make([]byte, bodyLen))
	require.NoError(t, err)

	// Once the queued message is fully flushed, the socket closes: the next
	// read observes EOF rather than blocking forever.
	_, _ = client.Read(make([]byte, 1))
	assert.True(t, dp.WaitInactive(time.Second))
}
