package event_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ofswitch/controller/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RegisterDispatchesInRegistrationOrder(t *testing.T) {
	d := event.NewDispatcher("MAIN", nil, nil)

	var order []int
	d.Register(event.ClassGeneric, event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		order = append(order, 1)
		return nil
	}))
	d.Register(event.ClassGeneric, event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		order = append(order, 2)
		return nil
	}))

	d.Dispatch(context.Background(), event.NewGeneric("k", nil))

	assert.Equal(t, []int{1, 2}, order)
}

func TestDispatcher_DispatchOnlyMatchesExactClass(t *testing.T) {
	d := event.NewDispatcher("MAIN", nil, nil)

	var calls int32
	d.Register(event.ClassDatapathEnter, event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	d.Dispatch(context.Background(), event.NewDatapathLeave(nil))

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDispatcher_RegisterIsIdempotentByIdentity(t *testing.T) {
	d := event.NewDispatcher("MAIN", nil, nil)

	var calls int32
	h := event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	d.Register(event.ClassGeneric, h)
	d.Register(event.ClassGeneric, h)
	d.Dispatch(context.Background(), event.NewGeneric("k", nil))

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDispatcher_UnregisterLeavesDispatcherObservationallyIdentical(t *testing.T) {
	d := event.NewDispatcher("MAIN", nil, nil)

	var calls int32
	h := event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	d.Register(event.ClassGeneric, h)
	d.Unregister(event.ClassGeneric, h)
	d.Dispatch(context.Background(), event.NewGeneric("k", nil))

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDispatcher_HandlerPanicDoesNotStopSubsequentHandlers(t *testing.T) {
	d := event.NewDispatcher("MAIN", nil, nil)

	var ran int32
	d.Register(event.ClassGeneric, event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		panic("boom")
	}))
	d.Register(event.ClassGeneric, event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}))

	require.NotPanics(t, func() {
		d.Dispatch(context.Background(), event.NewGeneric("k", nil))
	})
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestDispatcher_HandlerErrorDoesNotStopSubsequentHandlers(t *testing.T) {
	d := event.NewDispatcher("MAIN", nil, nil)

	var ran int32
	d.Register(event.ClassGeneric, event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		return errors.New("failed")
	}))
	d.Register(event.ClassGeneric, event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}))

	d.Dispatch(context.Background(), event.NewGeneric("k", nil))
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestDispatcher_InheritableHandlersObserveEveryPhase(t *testing.T) {
	inh := event.NewInheritable()

	var calls int32
	echo := event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	inh.Register(event.ClassGeneric, echo)

	handshake := event.NewDispatcher("HANDSHAKE", inh, nil)
	main := event.NewDispatcher("MAIN", inh, nil)
	dead := event.NewDispatcher("DEAD", inh, nil)

	handshake.Dispatch(context.Background(), event.NewGeneric("k", nil))
	main.Dispatch(context.Background(), event.NewGeneric("k", nil))
	dead.Dispatch(context.Background(), event.NewGeneric("k", nil))

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDispatcher_InheritableUnregisterIsSymmetric(t *testing.T) {
	inh := event.NewInheritable()

	var calls int32
	h := event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	inh.Register(event.ClassGeneric, h)
	inh.Unregister(event.ClassGeneric, h)

	d := event.NewDispatcher("MAIN", inh, nil)
	d.Dispatch(context.Background(), event.NewGeneric("k", nil))

	assert.Zero(t, atomic.LoadInt32(&calls))
}
