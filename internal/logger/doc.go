// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a sane console encoder,
//   - optional JSON file output rotated by lumberjack,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level parsing and convenience functions (Infof, ErrorKV, etc.).
//
// The pipeline stages accept a context and extract the logger from it, so a
// session id attached once at the top shows up on every line.
package logger
