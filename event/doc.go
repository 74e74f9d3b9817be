// Package event implements the dispatcher and event-queue abstraction that
// lets applications subscribe to OpenFlow protocol events per connection
// phase: immutable Event values, Dispatcher registries keyed by event class,
// and an EventQueue bound to exactly one dispatcher at a time.
//
// Rather than a single global bus, there are many small, phase-scoped
// dispatchers: a Datapath moves its EventQueue between named Dispatcher
// singletons as it advances through the handshake, and handlers registered
// on a given Dispatcher only ever see events drained while that Dispatcher
// is current.
package event
