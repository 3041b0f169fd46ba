// Package metric provides Prometheus metrics for the KeyMesh client.
//
// The client owns a private registry rather than the global one, so
// several clients in one process never collide on registration. The CLI
// writes it with WriteTextfile for a node_exporter textfile collector.
package metric
