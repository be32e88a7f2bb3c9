// Package detector implements the gRPC transport of the detection service.
//
// It registers a hand-written service descriptor that speaks the structpb
// contract of the detector package and delegates to a detector.Model.
package detector
