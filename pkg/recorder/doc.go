// Package recorder turns live user interactions on a page into a replayable
// journey definition.
//
// A Recorder subscribes to click, input and navigation events, filters
// them (pause, exclusion globs, debounce), picks a durable selector for
// each target with the selector package and appends a step. Stop releases
// every subscription and post-processes the steps: redirect chains
// collapse to their destination, duplicates collapse, and selectors that
// no longer resolve uniquely are re-resolved or flagged.
//
// A Registry owns the sessions of a process and enforces one active
// recording per page.
package recorder
