package detector

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/driver-guard/internal/detector"
	"github.com/oshokin/driver-guard/internal/domain/detection"
	"github.com/oshokin/driver-guard/internal/logger"
)

// Handler is the server side of the detection contract.
type Handler interface {
	Load(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Detect(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// ServiceDesc describes the detection service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package level by gRPC convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: detector.ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: detector.LoadMethodName,
			Handler:    loadHandler,
		},
		{
			MethodName: detector.DetectMethodName,
			Handler:    detectHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "driverguard/detector/v1",
}

// Register attaches handler to the gRPC server.
func Register(s grpc.ServiceRegistrar, handler Handler) {
	s.RegisterService(&ServiceDesc, handler)
}

func loadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	handler, _ := srv.(Handler)

	if interceptor == nil {
		return handler.Load(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: detector.LoadMethod,
	}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		msg, _ := req.(*structpb.Struct)

		return handler.Load(ctx, msg)
	})
}

func detectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	handler, _ := srv.(Handler)

	if interceptor == nil {
		return handler.Detect(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: detector.DetectMethod,
	}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		msg, _ := req.(*wrapperspb.BytesValue)

		return handler.Detect(ctx, msg)
	})
}

// Server implements Handler on top of a detector.Model.
type Server struct {
	// model answers Load and Detect calls.
	model detector.Model

	// mu protects the fields below.
	mu sync.RWMutex
	// loaded is set once a Load call succeeded.
	loaded bool
	// confidence is the minimum score requested by the last Load.
	confidence float64
}

// NewServer wires the provided model into a gRPC handler.
func NewServer(model detector.Model) *Server {
	return &Server{
		model: model,
	}
}

// Load loads the weights described by the request and returns the class names.
func (s *Server) Load(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	request := detector.DecodeLoadRequest(req)
	if strings.TrimSpace(request.Weights) == "" {
		return nil, status.Error(codes.InvalidArgument, "weights are required")
	}

	names, err := s.model.Load(ctx, request)
	if err != nil {
		logger.WarnKV(ctx, "Model load rejected", "weights", request.Weights, "error", err)

		if errors.Is(err, detection.ErrModelLoad) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}

		return nil, status.Error(codes.Internal, "unable to load model")
	}

	s.mu.Lock()
	s.loaded = true
	s.confidence = request.Confidence
	s.mu.Unlock()

	logger.InfoKV(ctx, "Model loaded", "weights", request.Weights, "classes", len(names))

	response, err := detector.EncodeNames(names)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return response, nil
}

// Detect decodes the uploaded frame and returns the model detections.
func (s *Server) Detect(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if req == nil || len(req.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "frame is required")
	}

	s.mu.RLock()
	loaded, confidence := s.loaded, s.confidence
	s.mu.RUnlock()

	if !loaded {
		return nil, status.Error(codes.FailedPrecondition, "model is not loaded")
	}

	index, err := frameIndex(ctx)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(req.GetValue()))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode frame: %v", err)
	}

	if err = checkFrameSize(ctx, img.Bounds()); err != nil {
		return nil, err
	}

	frame := &detection.Frame{
		Index: index,
		Image: img,
	}

	dets, err := s.model.Detect(ctx, frame)
	if err != nil {
		logger.WarnKV(ctx, "Inference failed", "frame", index, "error", err)

		return nil, status.Error(codes.Internal, err.Error())
	}

	raws := make([]detector.RawDetection, 0, len(dets))

	for _, d := range dets {
		if d.Confidence() < confidence {
			continue
		}

		raws = append(raws, detector.FromDetection(d))
	}

	response, err := detector.EncodeDetections(raws)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return response, nil
}

// frameIndex reads the frame index from the call metadata.
func frameIndex(ctx context.Context) (int, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	values := md.Get(detector.MetadataFrameIndex)
	if len(values) == 0 {
		return 0, status.Error(codes.InvalidArgument, "frame index metadata is required")
	}

	index, err := strconv.Atoi(values[0])
	if err != nil || index < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "invalid frame index %q", values[0])
	}

	return index, nil
}

// checkFrameSize compares the decoded frame with the size announced in the call
// metadata. Callers that announce no size are not checked.
func checkFrameSize(ctx context.Context, bounds image.Rectangle) error {
	md, _ := metadata.FromIncomingContext(ctx)

	announced := []struct {
		key    string
		actual int
	}{
		{detector.MetadataFrameWidth, bounds.Dx()},
		{detector.MetadataFrameHeight, bounds.Dy()},
	}

	for _, dim := range announced {
		values := md.Get(dim.key)
		if len(values) == 0 {
			continue
		}

		size, err := strconv.Atoi(values[0])
		if err != nil || size <= 0 {
			return status.Errorf(codes.InvalidArgument, "invalid %s %q", dim.key, values[0])
		}

		if size != dim.actual {
			return status.Errorf(codes.InvalidArgument, "%s is %d, decoded frame has %d", dim.key, size, dim.actual)
		}
	}

	return nil
}
