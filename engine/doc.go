// Package engine derives templates and queries from an analysis.
//
// Template builders turn extracted tokens into typed templates (candidate
// intents with slot bindings). Query builders then generate search queries
// for the templates they accept, parameterized per client through
// component configurations.
//
// Queries are never patched in place. RebuildQueries regenerates every
// query from scratch on each run and reconciles externally-observed state
// (Confirmed/Rejected feedback) back onto the fresh queries by template
// position and creator. State is the only field that survives a rebuild;
// confidence, url and title always reflect the newest analysis.
package engine
