// Package health tracks component health for the liveness and readiness
// endpoints.
//
// Components register probe functions with a Monitor. Liveness is a
// cheap process-level snapshot (the process is up and answering).
// Readiness runs every registered probe and aggregates the results with
// worst-case rules: one unhealthy component marks the service not
// ready, degraded components keep it ready but are reported.
//
// Probe error messages are sanitized before they leave the process so
// connection strings and credentials never show up on a health
// dashboard.
package health
