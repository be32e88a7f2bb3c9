// Package sink presents pipeline results.
//
// Every Sink receives the frame, its detections, the alerts raised on it and
// the alert state after the frame. Sinks cover the log, an annotated output
// video, alert snapshots, an audible siren and alert publishers for MQTT,
// Redis streams, PostgreSQL and WebSocket clients. Fanout delivers a result to
// several sinks and joins their failures.
package sink
