// Package metrics defines the cycle report produced after every rebalance
// cycle and command batch, and the sink interfaces that record it. Sinks like
// PromSink and InfluxSink live in infra/metrics and can be combined with
// NewMultiSink; optional recorder interfaces let a sink opt into command,
// switch and partial allocation events.
package metrics
