// Package ipc exposes the station over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. The
// server wraps a Station; the client bounds every call with a timeout so CLI
// commands fail fast when the station is wedged or offline.
package ipc
