// Package pipeline runs an ordered set of analysis stages over a
// conversation snapshot.
//
// Stages are small units (keyword extraction, date extraction, ...) that
// read the conversation in a Buffer and contribute tokens to the analysis
// under construction. The stage set is resolved once at startup from the
// configured required/optional lists and then frozen; every analysis run
// sees the same stages in the same priority order.
//
// A failing stage never aborts the run. Its error is logged and the
// remaining stages still execute, so a partial analysis is produced rather
// than none. Missing required stages, in contrast, are a startup error.
package pipeline
