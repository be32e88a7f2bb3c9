// Package replay runs a detection server that answers from a scripted
// detection sequence. It speaks the same contract as the real model server.
package replay
