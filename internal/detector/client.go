package detector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/driver-guard/internal/domain/detection"
	"github.com/oshokin/driver-guard/internal/logger"
)

const (
	// DefaultCallTimeout bounds a single Detect call.
	DefaultCallTimeout = 5 * time.Second
	// DefaultLoadTimeout bounds the Load call, loading weights is slow.
	DefaultLoadTimeout = time.Minute
	// jpegQuality is the quality frames are encoded with before upload.
	jpegQuality = 90
)

// Client is the handle of a model loaded on the detection server.
// Its lifetime is scoped to one pipeline run.
type Client struct {
	// conn is the underlying gRPC connection to the detection server.
	conn *grpc.ClientConn

	// names are the class names reported by the model, indexed by class id.
	names []string
	// fallback names class ids the model did not name, usually from data.yaml.
	fallback ClassNames

	// callTimeout is the timeout of individual Detect calls.
	callTimeout time.Duration
	// loadTimeout is the timeout of the Load call.
	loadTimeout time.Duration
	// confidence is the minimum score requested from the server.
	confidence float64
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets the timeout of every Detect call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithLoadTimeout sets the timeout of the Load call.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.loadTimeout = timeout
		}
	}
}

// ClassNames resolves class ids to names.
type ClassNames interface {
	Name(id int) (string, bool)
}

// WithFallbackNames names class ids the model reports without a name.
func WithFallbackNames(names ClassNames) Option {
	return func(c *Client) {
		c.fallback = names
	}
}

// WithConfidence asks the server to drop detections scored below threshold.
func WithConfidence(threshold float64) Option {
	return func(c *Client) {
		c.confidence = threshold
	}
}

// Dial connects to the detection server and loads the weights.
// Every failure wraps detection.ErrModelLoad.
// Note: this uses insecure transport credentials; the model server is expected
// to run on the same host or a trusted network.
func Dial(ctx context.Context, address, weights string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: %w", detection.ErrModelLoad, errAddressRequired)
	}

	if weights == "" {
		return nil, fmt.Errorf("%w: %w", detection.ErrModelLoad, errWeightsRequired)
	}

	checksum, err := fileChecksum(weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrModelLoad, err)
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: dial detector: %w", detection.ErrModelLoad, err)
	}

	client := &Client{
		conn:        conn,
		callTimeout: DefaultCallTimeout,
		loadTimeout: DefaultLoadTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	if err = client.load(ctx, weights, checksum); err != nil {
		_ = conn.Close()

		return nil, err
	}

	logger.InfoKV(ctx, "Model loaded",
		"address", address,
		"weights", weights,
		"sha256", checksum,
		"classes", len(client.names))

	return client, nil
}

// fileChecksum returns the hex SHA-256 of the file at path.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open weights: %w", err)
	}

	defer f.Close()

	hash := sha256.New()
	if _, err = io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("read weights: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// load sends the Load call and keeps the returned class names.
func (c *Client) load(ctx context.Context, weights, checksum string) error {
	request, err := EncodeLoadRequest(LoadRequest{
		Weights:    weights,
		SHA256:     checksum,
		Confidence: c.confidence,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", detection.ErrModelLoad, err)
	}

	loadCtx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	response := new(structpb.Struct)
	if err = c.conn.Invoke(loadCtx, LoadMethod, request, response); err != nil {
		return fmt.Errorf("%w: load weights: %w", detection.ErrModelLoad, err)
	}

	c.names = DecodeNames(response)

	return nil
}

// Names returns the class names reported by the model.
func (c *Client) Names() []string {
	return c.names
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Detect uploads the frame and returns the validated detections.
// Detections that fail validation are dropped and logged.
func (c *Client) Detect(ctx context.Context, frame *detection.Frame) ([]detection.Detection, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrInference, errEmptyFrame)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame.Image, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode frame %d: %w", detection.ErrInference, frame.Index, err)
	}

	bounds := frame.Bounds()

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	callCtx = metadata.AppendToOutgoingContext(callCtx,
		MetadataFrameIndex, strconv.Itoa(frame.Index),
		MetadataFrameWidth, strconv.Itoa(bounds.Dx()),
		MetadataFrameHeight, strconv.Itoa(bounds.Dy()),
	)

	response := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, DetectMethod, wrapperspb.Bytes(buf.Bytes()), response); err != nil {
		return nil, fmt.Errorf("%w: frame %d: %w", detection.ErrInference, frame.Index, err)
	}

	return Validate(ctx, frame, DecodeDetections(response), c.label), nil
}

// label resolves the class name of a raw detection.
func (c *Client) label(raw RawDetection) string {
	if raw.Label != "" {
		return raw.Label
	}

	if raw.ClassID >= 0 && raw.ClassID < len(c.names) && c.names[raw.ClassID] != "" {
		return c.names[raw.ClassID]
	}

	if c.fallback != nil {
		if name, ok := c.fallback.Name(raw.ClassID); ok {
			return name
		}
	}

	return ""
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// Validate turns raw detections into domain detections clipped to the frame.
// Labels are resolved with labelOf and cleaned; invalid entries are logged and dropped.
func Validate(
	ctx context.Context,
	frame *detection.Frame,
	raws []RawDetection,
	labelOf func(RawDetection) string,
) []detection.Detection {
	bounds := frame.Bounds()
	dets := make([]detection.Detection, 0, len(raws))

	for _, raw := range raws {
		label := raw.Label
		if labelOf != nil {
			label = labelOf(raw)
		}

		det, err := detection.New(detection.CleanLabel(label), raw.Confidence, raw.Box, bounds)
		if err != nil {
			logger.WarnKV(ctx, "Dropping detection",
				"frame", frame.Index,
				"class_id", raw.ClassID,
				"error", err)

			continue
		}

		dets = append(dets, det)
	}

	return dets
}
