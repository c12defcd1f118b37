// Package logger builds the charmbracelet/log logger shared by every component.
//
// Level names follow charmbracelet/log; JSON output is selected by config.
// Logs go to stderr unless an output is supplied.
package logger
