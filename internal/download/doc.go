// Package download implements a single resumable-in-session HTTP transfer.
//
// A Task probes the source with HEAD to learn its size, then streams one GET
// response to disk in fixed-size chunks. Between chunks it honours Pause,
// Resume and Stop requests sent from any goroutine, and it reports state and
// progress changes to subscribers in the order they happen.
package download
