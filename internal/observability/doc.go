// Package observability provides structured logging and Prometheus metrics
// for the coffee shop API.
//
// Metrics are registered on an explicit registry handed out by NewMetrics;
// nothing is registered on the global default registry.
package observability
