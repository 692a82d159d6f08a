// Package logging provides a small leveled logger. Loggers are nil-safe (a
// nil *Logger discards everything) and organized hierarchically via
// Sublogger, matching how the monitor package names its loggers
// ("monitor.<first eight characters of the monitor's id>").
package logging
