package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/detector"
	"github.com/oshokin/driver-guard/internal/domain/alert"
	"github.com/oshokin/driver-guard/internal/domain/detection"
	"github.com/oshokin/driver-guard/internal/domain/session"
	"github.com/oshokin/driver-guard/internal/logger"
	repository "github.com/oshokin/driver-guard/internal/repository/report"
	"github.com/oshokin/driver-guard/internal/source"
)

// Options controls a monitoring run. Non-zero fields override the configuration file.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Source is the video, image, directory or camera to monitor.
	Source string
	// Weights is the path to the model weights file.
	Weights string
	// Threshold overrides the default detection confidence when set.
	Threshold *float64
	// DetectorAddress overrides the detection server address.
	DetectorAddress string
	// Dataset is the path to a data.yaml file with class names.
	Dataset string
	// MinFrames overrides the default debounce window.
	MinFrames int
	// Output is the path of the annotated output video.
	Output string
	// LogLevel overrides the log level.
	LogLevel string
	// ReportFile overrides where the session report is written.
	ReportFile string
	// Stdout receives the session summary table; os.Stdout when nil.
	Stdout io.Writer
}

// apply merges command-line overrides into cfg.
func (o *Options) apply(cfg *config.Config) {
	overrides := []struct {
		value  string
		target *string
	}{
		{o.Source, &cfg.Source.Path},
		{o.Weights, &cfg.Detector.Weights},
		{o.DetectorAddress, &cfg.Detector.Address},
		{o.Dataset, &cfg.Dataset},
		{o.Output, &cfg.Sinks.Output},
		{o.LogLevel, &cfg.Log.Level},
		{o.ReportFile, &cfg.ReportFile},
	}

	for _, override := range overrides {
		if override.value != "" {
			*override.target = override.value
		}
	}

	if o.Threshold != nil {
		threshold := *o.Threshold
		cfg.Policy.Threshold = &threshold
	}

	if o.MinFrames > 0 {
		cfg.Policy.MinFrames = o.MinFrames
	}
}

// Run executes one monitoring session and blocks until the stream ends or ctx is canceled.
// Invalid settings, an unavailable source and a model that fails to load are
// returned as errors; a user interrupt is a normal exit.
//
//nolint:funlen // Startup order matters and reads best in one place.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "driver-guard")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	opts.apply(cfg)

	if err = config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.File)

	dialOptions := []detector.Option{
		detector.WithCallTimeout(cfg.Detector.Timeout),
		detector.WithLoadTimeout(cfg.Detector.LoadTimeout),
		detector.WithConfidence(lowestThreshold(&cfg.Policy)),
	}

	if cfg.Dataset != "" {
		dataset, datasetErr := config.LoadDataset(cfg.Dataset)
		if datasetErr != nil {
			return fmt.Errorf("load dataset: %w", datasetErr)
		}

		for _, class := range unknownClasses(&cfg.Policy, dataset.List()) {
			logger.WarnKV(ctx, "Monitored class is not in the dataset", "class", class, "dataset", cfg.Dataset)
		}

		dialOptions = append(dialOptions, detector.WithFallbackNames(dataset))
	}

	if source.IsCamera(cfg.Source.Path) {
		lock, lockErr := acquireCameraLock(os.TempDir(), cfg.Source.Path)
		if lockErr != nil {
			return fmt.Errorf("%w: %w", detection.ErrSourceUnavailable, lockErr)
		}

		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				logger.WarnKV(ctx, "Release camera lock failed", "error", releaseErr)
			}
		}()
	}

	model, err := detector.Dial(ctx, cfg.Detector.Address, cfg.Detector.Weights, dialOptions...)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := model.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Close detector failed", "error", closeErr)
		}
	}()

	src, err := source.Open(ctx, source.Spec{
		Path:         cfg.Source.Path,
		FPS:          cfg.Source.FPS,
		Width:        cfg.Source.Width,
		Height:       cfg.Source.Height,
		CameraFormat: cfg.Source.CameraFormat,
	})
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Close source failed", "error", closeErr)
		}
	}()

	rules, policyOptions := cfg.Policy.Rules(src.FPS())

	policy, err := alert.NewPolicy(rules, policyOptions)
	if err != nil {
		return fmt.Errorf("build alert policy: %w", err)
	}

	report := &session.Report{
		SessionID: uuid.NewString(),
		Source:    cfg.Source.Path,
		StartedAt: time.Now(),
	}

	ctx = logger.WithFields(ctx, "session_id", report.SessionID, "source", cfg.Source.Path)

	logger.InfoKV(ctx, "Monitoring started",
		"fps", src.FPS(),
		"live", src.Live(),
		"classes", len(rules))

	sinks := buildSinks(ctx, cfg, policy, src.FPS())

	p := &pipeline{
		source:   src,
		detector: model,
		policy:   policy,
		sink:     sinks,
		now:      time.Now,
	}

	runErr := p.run(ctx, report)

	if closeErr := sinks.Close(); closeErr != nil {
		logger.WarnKV(ctx, "Close sinks failed", "error", closeErr)
	}

	report.FinishedAt = time.Now()

	if err = finish(ctx, cfg, opts, report); err != nil {
		logger.WarnKV(ctx, "Session report failed", "error", err)
	}

	return runErr
}

// finish prints the session summary and saves the report.
func finish(ctx context.Context, cfg *config.Config, opts *Options, report *session.Report) error {
	operator, err := DetectOperator()
	if err != nil {
		logger.WarnKV(ctx, "Detect operator failed", "error", err)
	}

	report.Operator = operator

	logger.InfoKV(ctx, "Monitoring finished",
		"frames", report.Frames,
		"skipped", report.Skipped,
		"alerts", len(report.Alerts),
		"interrupted", report.Interrupted)

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	if err = RenderSummary(out, report); err != nil {
		return err
	}

	repo := repository.NewFileRepository(cfg.ReportFile)
	if err = repo.Save(ctx, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	logger.InfoKV(ctx, "Session report saved", "path", repo.Path())

	return nil
}

// lowestThreshold is the smallest confidence any class accepts.
// Detections below it are useless and the server may drop them.
func lowestThreshold(policy *config.PolicyConfig) float64 {
	lowest := policy.MinConfidence()

	for _, class := range policy.Classes {
		if class.Threshold != nil && *class.Threshold < lowest {
			lowest = *class.Threshold
		}
	}

	return lowest
}

// unknownClasses returns the monitored classes that no dataset name matches
// after label cleanup. Such classes can never raise an alert.
func unknownClasses(policy *config.PolicyConfig, names []string) []string {
	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		known[strings.ToLower(detection.CleanLabel(name))] = struct{}{}
	}

	var unknown []string

	for _, class := range policy.Classes {
		if _, ok := known[strings.ToLower(strings.TrimSpace(class.Name))]; !ok {
			unknown = append(unknown, class.Name)
		}
	}

	return unknown
}
