package monitor

import (
	"context"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/logger"
	"github.com/oshokin/driver-guard/internal/sink"
)

// buildSinks creates the configured sinks. The log sink is always present.
// An optional sink that cannot start is reported and left out, the
// detection pipeline does not depend on it.
func buildSinks(ctx context.Context, cfg *config.Config, classes sink.Classes, fps float64) *sink.Fanout {
	fanout := sink.NewFanout(sink.NewLog())

	// Overlay and snapshots share one annotator, so every frame is drawn once.
	annotator := sink.NewAnnotator(classes)

	if cfg.Sinks.Output != "" {
		s, err := sink.NewOverlay(ctx, cfg.Sinks.Output, fps, annotator)
		addSink(ctx, fanout, "overlay", s, err)
	}

	if cfg.Sinks.SnapshotDir != "" {
		s, err := sink.NewSnapshot(cfg.Sinks.SnapshotDir, annotator)
		addSink(ctx, fanout, "snapshot", s, err)
	}

	if cfg.Sinks.Siren.Enabled {
		s, err := sink.NewSiren(cfg.Sinks.Siren.File, cfg.Sinks.Siren.Player)
		addSink(ctx, fanout, "siren", s, err)
	}

	if cfg.Sinks.MQTT.Broker != "" {
		s, err := sink.NewMQTT(ctx, cfg.Sinks.MQTT)
		addSink(ctx, fanout, "mqtt", s, err)
	}

	if cfg.Sinks.Redis.Address != "" {
		s, err := sink.NewRedis(ctx, cfg.Sinks.Redis)
		addSink(ctx, fanout, "redis", s, err)
	}

	if cfg.Sinks.Postgres.DSN != "" {
		s, err := sink.NewPostgres(ctx, cfg.Sinks.Postgres)
		addSink(ctx, fanout, "postgres", s, err)
	}

	if cfg.Sinks.WebSocket.Listen != "" {
		s, err := sink.NewWebSocket(ctx, cfg.Sinks.WebSocket.Listen)
		addSink(ctx, fanout, "websocket", s, err)
	}

	return fanout
}

// addSink adds s to fanout unless its constructor failed.
func addSink[S sink.Sink](ctx context.Context, fanout *sink.Fanout, name string, s S, err error) {
	if err != nil {
		logger.WarnKV(ctx, "Sink disabled", "sink", name, "error", err)

		return
	}

	fanout.Add(s)
	logger.DebugKV(ctx, "Sink enabled", "sink", name)
}
