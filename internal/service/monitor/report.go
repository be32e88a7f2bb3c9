package monitor

import (
	"context"
	"fmt"
	"io"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/logger"
	repository "github.com/oshokin/driver-guard/internal/repository/report"
)

// ShowReport prints the summary of the last saved session.
// The report file comes from reportPath or, when empty, from the settings at configPath.
func ShowReport(ctx context.Context, configPath, reportPath string, w io.Writer) error {
	ctx = logger.WithName(ctx, "report")

	if reportPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}

		reportPath = cfg.ReportFile
	}

	repo := repository.NewFileRepository(reportPath)

	report, err := repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load report %s: %w", repo.Path(), err)
	}

	logger.DebugKV(ctx, "Session report loaded", "path", repo.Path(), "session_id", report.SessionID)

	return RenderSummary(w, report)
}
