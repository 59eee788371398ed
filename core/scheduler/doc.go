// Package scheduler runs the two long-lived actors of the service: the
// rebalance actor, which periodically runs a full engine cycle, and the
// command actor, which polls a command source and applies pending commands
// as one batch.
//
// Both actors mutate the same SystemState. A single mutex is held for the
// whole of every cycle and every batch, so no command is ever interleaved
// with rebalance mutations and readers never observe a half-applied episode.
// The idle flag and its condition variable only tell the command actor that
// the rebalance actor has finished a cycle; exclusion comes from the mutex.
package scheduler
