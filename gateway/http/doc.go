// Package http exposes the conversation service over a small REST
// surface.
//
// Clients identify themselves with the X-Client-Id header; the service
// layer enforces that a client only touches its own conversations.
// Message appends accept an optional callback query parameter: with it
// the analysis runs asynchronously (202 Accepted) and the result is
// POSTed to the callback URI, without it the request blocks until the
// analysis commits (200 OK).
package http
