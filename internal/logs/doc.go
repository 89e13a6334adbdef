// Package logs reads and maintains the daemon log file.
//
// Tail returns bounded slices of log lines with a resumable offset so the CLI
// can show the last N lines or follow new output without loading the whole
// file. Prune removes log files that have aged past the configured retention
// window.
package logs
