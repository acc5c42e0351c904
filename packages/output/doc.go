// Package output renders dispatch outcomes, history and stats for the
// terminal.
//
// Supported output formats:
//   - Console: human-readable colored output
//   - JSON: machine-readable output, one document per call
//
// Both formatters implement Formatter.
package output
