// Package logging builds the slog loggers shared by the station, the tracker
// and the CLI.
//
// Console output is a compact single-line format meant for an operator's
// terminal; when a log directory is configured every process also writes JSON
// lines to a size-rotated file under that directory. Components derive their
// loggers through NewComponentLogger so every line carries a component key,
// and long-running processes tag their output with a session id.
package logging
