// Package metric manages Prometheus metric registration for convstreams.
//
// A single Registry owns the underlying prometheus.Registry; subsystems
// (worker pool, dispatcher, pipeline, gateway) register their collectors
// under a subsystem name so duplicate registration is caught at startup
// instead of panicking at scrape time. Handler exposes the registry for the
// gateway's /metrics endpoint.
package metric
