// Package metrics records search degradation diagnostics with Prometheus
// collectors registered on a caller-supplied registry.
//
// Every method is safe on a nil *Metrics, so components record
// unconditionally and metrics stay optional. WriteTextfile dumps the registry
// in the node-exporter textfile format for one-shot CLI runs.
package metrics
