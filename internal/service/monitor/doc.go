// Package monitor runs the driver-guard pipeline: it reads frames from a
// source, sends them to the detection model, applies the alert policy and
// hands every result to the configured sinks until the stream ends or the
// user stops the run. A session summary is printed and saved at the end.
package monitor
