// Command dronetrack runs the station and tracker processes of the drone
// visual-servo link and controls a running station over its Unix socket.
//
// The station (dronetrack producer) publishes frames and flies the aircraft;
// the tracker (dronetrack tracker) analyzes frames and writes the tracking
// error back. Both attach to the same shared-memory bus; whichever exits last
// removes it, and dronetrack teardown recovers after a crash.
package main
