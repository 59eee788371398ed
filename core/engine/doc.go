// Package engine assigns power modules to connectors over the switching
// fabric described by package topology.
//
// The engine mutates a state.SystemState in place and reports every switching
// effect as an Event. It performs no I/O of its own; the caller is expected
// to hold exclusive access to the state for the duration of each call.
package engine
