// Package integration holds end-to-end tests that run the monitor pipeline
// against a replay detection server over a real gRPC listener.
package integration
