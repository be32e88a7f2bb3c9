// Package detector adapts the external detection model to the pipeline.
//
// The model runs out of process behind a small gRPC contract built on the
// well-known structpb and wrapperspb messages, so no generated code is needed
// on either side. Client dials the model, loads the weights and turns every
// response into validated detections. Replay serves scripted detections and
// backs the detector-replay server and the tests.
package detector
