// Package journal persists every flight command the station issues.
//
// The journal is a SQLite database (modernc.org/sqlite, no cgo) living under
// the state directory. Each row records one timed pulse or one takeoff or
// land call together with the error vector that caused it, so that a flight
// can be reviewed afterwards with `dronetrack history`.
package journal
