// Package infra contains technical adapters: the MQTT transport, snapshot
// stores, telemetry ingestion, metrics exporters and tracing. These packages
// depend only on the interfaces defined in the core packages.
package infra
