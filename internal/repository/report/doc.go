// Package report implements persistence for session reports.
//
// The FileRepository stores and loads the report as YAML on disk and exposes a
// Repository interface that the monitor service depends on.
package report
