package monitor

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/oshokin/driver-guard/internal/domain/session"
)

// RenderSummary writes the per-class session table to w.
func RenderSummary(w io.Writer, report *session.Report) error {
	style := table.StyleLight
	style.Format.Footer = text.FormatDefault

	t := table.NewWriter()
	t.SetStyle(style)
	t.SetTitle(fmt.Sprintf("Session %s (%s)", report.SessionID, report.Source))
	t.AppendHeader(table.Row{"Behavior", "Frames", "Duration", "Alerts", "Triggered"})

	for _, class := range report.Classes {
		triggered := "No"
		if class.Triggered() {
			triggered = "Yes"
		}

		t.AppendRow(table.Row{
			class.Class,
			class.Frames,
			class.Duration.Round(time.Millisecond).String(),
			class.Alerts,
			triggered,
		})
	}

	if len(report.Classes) == 0 {
		t.AppendRow(table.Row{"no monitored behavior detected", "", "", "", ""})
	}

	status := "completed"
	if report.Interrupted {
		status = "interrupted"
	}

	t.AppendFooter(table.Row{
		status,
		fmt.Sprintf("%d (%d skipped)", report.Frames, report.Skipped),
		report.Duration().Round(time.Second).String(),
		len(report.Alerts),
		"",
	})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}
