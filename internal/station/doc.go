// Package station runs the producer side of the drone link: it publishes
// decoded frames onto the bus, drives the flight controller from the error
// vector the tracker writes back, and serves the CLI over IPC.
package station
