// Package control turns tracking error into timed flight commands.
//
// The Controller reads the latest error vector while the tracking gate is
// open and applies a priority policy: a large horizontal error is corrected
// alone, then a large depth error alone, otherwise the three axes are
// corrected in turn. Every correction is a timed pulse: the flight API only
// registers motion when a progressive command is repeated for a sustained
// period, so the command is re-sent until the pulse duration elapses.
//
// Manual actions, takeoff and land share the same pulse machinery and are
// serialized with the tracking loop so two commands never interleave.
package control
