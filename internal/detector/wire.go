package detector

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

// Wire contract of the detection service.
const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "driverguard.detector.v1.Detector"
	// LoadMethodName loads weights: Struct{weights, sha256, confidence} -> Struct{names}.
	LoadMethodName = "Load"
	// DetectMethodName runs inference: BytesValue{jpeg} -> Struct{detections}.
	DetectMethodName = "Detect"
	// LoadMethod is the full method name of Load.
	LoadMethod = "/" + ServiceName + "/" + LoadMethodName
	// DetectMethod is the full method name of Detect.
	DetectMethod = "/" + ServiceName + "/" + DetectMethodName

	// MetadataFrameIndex carries the frame index of a Detect call.
	MetadataFrameIndex = "frame-index"
	// MetadataFrameWidth carries the width of the encoded frame.
	MetadataFrameWidth = "frame-width"
	// MetadataFrameHeight carries the height of the encoded frame.
	MetadataFrameHeight = "frame-height"
)

// Field names used in the request and response structs.
const (
	fieldWeights    = "weights"
	fieldSHA256     = "sha256"
	fieldConfidence = "confidence"
	fieldNames      = "names"
	fieldDetections = "detections"
	fieldLabel      = "label"
	fieldClassID    = "class_id"
	fieldX          = "x"
	fieldY          = "y"
	fieldWidth      = "width"
	fieldHeight     = "height"
)

// NoClassID marks a raw detection that carries only a label.
const NoClassID = -1

// LoadRequest asks the model server to load weights.
type LoadRequest struct {
	// Weights is the weights path as known to the caller.
	Weights string
	// SHA256 is the hex checksum of the weights file.
	SHA256 string
	// Confidence is the minimum score the server should report.
	Confidence float64
}

// RawDetection is a detection as it travels on the wire, before validation.
type RawDetection struct {
	Label      string
	ClassID    int
	Confidence float64
	Box        detection.Box
}

// FromDetection converts a validated detection to its wire form.
func FromDetection(d detection.Detection) RawDetection {
	return RawDetection{
		Label:      d.Label(),
		ClassID:    NoClassID,
		Confidence: d.Confidence(),
		Box:        d.Box(),
	}
}

// EncodeLoadRequest builds the Load request message.
func EncodeLoadRequest(req LoadRequest) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(map[string]any{
		fieldWeights:    req.Weights,
		fieldSHA256:     req.SHA256,
		fieldConfidence: req.Confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("encode load request: %w", err)
	}

	return msg, nil
}

// DecodeLoadRequest reads the Load request message.
func DecodeLoadRequest(msg *structpb.Struct) LoadRequest {
	fields := msg.GetFields()

	return LoadRequest{
		Weights:    fields[fieldWeights].GetStringValue(),
		SHA256:     fields[fieldSHA256].GetStringValue(),
		Confidence: fields[fieldConfidence].GetNumberValue(),
	}
}

// EncodeNames builds the Load response message.
func EncodeNames(names []string) (*structpb.Struct, error) {
	list := make([]any, 0, len(names))
	for _, name := range names {
		list = append(list, name)
	}

	msg, err := structpb.NewStruct(map[string]any{fieldNames: list})
	if err != nil {
		return nil, fmt.Errorf("encode names: %w", err)
	}

	return msg, nil
}

// DecodeNames reads the class names of a Load response.
func DecodeNames(msg *structpb.Struct) []string {
	values := msg.GetFields()[fieldNames].GetListValue().GetValues()

	names := make([]string, 0, len(values))
	for _, value := range values {
		names = append(names, value.GetStringValue())
	}

	return names
}

// EncodeDetections builds the Detect response message.
func EncodeDetections(dets []RawDetection) (*structpb.Struct, error) {
	list := make([]any, 0, len(dets))

	for _, d := range dets {
		item := map[string]any{
			fieldConfidence: d.Confidence,
			fieldX:          d.Box.X,
			fieldY:          d.Box.Y,
			fieldWidth:      d.Box.Width,
			fieldHeight:     d.Box.Height,
		}

		if d.Label != "" {
			item[fieldLabel] = d.Label
		}

		if d.ClassID >= 0 {
			item[fieldClassID] = d.ClassID
		}

		list = append(list, item)
	}

	msg, err := structpb.NewStruct(map[string]any{fieldDetections: list})
	if err != nil {
		return nil, fmt.Errorf("encode detections: %w", err)
	}

	return msg, nil
}

// DecodeDetections reads the detections of a Detect response.
// Entries that are not objects are skipped.
func DecodeDetections(msg *structpb.Struct) []RawDetection {
	values := msg.GetFields()[fieldDetections].GetListValue().GetValues()

	dets := make([]RawDetection, 0, len(values))

	for _, value := range values {
		item := value.GetStructValue()
		if item == nil {
			continue
		}

		fields := item.GetFields()

		classID := NoClassID
		if v, ok := fields[fieldClassID]; ok {
			classID = toInt(v.GetNumberValue())
		}

		dets = append(dets, RawDetection{
			Label:      fields[fieldLabel].GetStringValue(),
			ClassID:    classID,
			Confidence: fields[fieldConfidence].GetNumberValue(),
			Box: detection.Box{
				X:      toInt(fields[fieldX].GetNumberValue()),
				Y:      toInt(fields[fieldY].GetNumberValue()),
				Width:  toInt(fields[fieldWidth].GetNumberValue()),
				Height: toInt(fields[fieldHeight].GetNumberValue()),
			},
		})
	}

	return dets
}

// toInt rounds a JSON number to the nearest pixel.
func toInt(v float64) int {
	return int(math.Round(v))
}
