// Package config loads and validates service configuration.
//
// Configuration comes from a JSON file with environment variable
// overrides (CONVSTREAMS_* prefix). Client-scoped component
// configurations (query builders and their parameters) are validated
// against a JSON schema before the service accepts them.
package config
