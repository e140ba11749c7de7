// Package querybuilders provides the built-in query builders. Generic
// turns the search template's bound tokens into a URL-encoded query
// against a configurable search endpoint; the endpoint itself stays
// external to this service.
package querybuilders
