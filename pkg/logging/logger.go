package logging

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end of
// a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	// Append the data to our internal buffer.
	w.buffer = append(w.buffer, buffer...)

	// Process all lines in the buffer, tracking the number of bytes that we
	// process.
	var processed int
	remaining := w.buffer
	for {
		// Find the index of the next newline character.
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}

		// Process the line.
		w.callback(string(trimCarriageReturn(remaining[:index])))

		// Update the number of bytes that we've processed.
		processed += index + 1

		// Update the remaining slice.
		remaining = remaining[index+1:]
	}

	// If we managed to process bytes, then truncate our internal buffer.
	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. Unlike the upstream
// reference it carries its own level and output rather than consulting a
// single process-wide debug flag, since a monitor may be embedded alongside
// other loggers at different verbosities. It is safe for concurrent usage;
// the underlying standard-library logger serializes writes.
type Logger struct {
	// level is the minimum level at which this logger (and its subloggers)
	// will produce output.
	level Level
	// prefix is any prefix specified for the logger.
	prefix string
	// target is the underlying standard library logger used for output.
	target *log.Logger
}

// RootLogger is the root logger from which all other loggers derive. It logs
// at LevelInfo to standard error by default; callers that want different
// behavior should create their own root with NewLogger.
var RootLogger = NewLogger(LevelInfo, os.Stderr)

// NewLogger creates a new root logger that writes to output at the specified
// level.
func NewLogger(level Level, output io.Writer) *Logger {
	return &Logger{
		level:  level,
		target: log.New(output, "", log.LstdFlags),
	}
}

// Level returns the logger's level.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return l.level
}

// Sublogger creates a new sublogger with the specified name. It inherits the
// parent's level and output.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}

	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	return &Logger{
		level:  l.level,
		prefix: prefix,
		target: l.target,
	}
}

// output is the internal logging method.
func (l *Logger) output(calldepth int, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	l.target.Output(calldepth, line)
}

// log emits a line if the logger's level is at least minimum.
func (l *Logger) log(minimum Level, calldepth int, line string) {
	if l == nil || l.level < minimum {
		return
	}
	l.output(calldepth+1, line)
}

// Error logs error information with a red "Error:" prefix. It is emitted
// whenever the logger's level is above LevelDisabled.
func (l *Logger) Error(err error) {
	l.log(LevelError, 3, color.RedString("Error: %v", err))
}

// Warn logs error information with a yellow "Warning:" prefix.
func (l *Logger) Warn(err error) {
	l.log(LevelWarn, 3, color.YellowString("Warning: %v", err))
}

// Info logs information with semantics equivalent to fmt.Print at LevelInfo.
func (l *Logger) Info(v ...interface{}) {
	l.log(LevelInfo, 3, fmt.Sprint(v...))
}

// Infof logs information with semantics equivalent to fmt.Printf at LevelInfo.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.log(LevelInfo, 3, fmt.Sprintf(format, v...))
}

// Debug logs information with semantics equivalent to fmt.Print at LevelDebug.
func (l *Logger) Debug(v ...interface{}) {
	l.log(LevelDebug, 3, fmt.Sprint(v...))
}

// Debugf logs information with semantics equivalent to fmt.Printf at
// LevelDebug.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.log(LevelDebug, 3, fmt.Sprintf(format, v...))
}

// Trace logs information with semantics equivalent to fmt.Print at
// LevelTrace, for the highest-volume, lowest-level diagnostic output (e.g.
// individual raw kernel events).
func (l *Logger) Trace(v ...interface{}) {
	l.log(LevelTrace, 3, fmt.Sprint(v...))
}

// Tracef logs information with semantics equivalent to fmt.Printf at
// LevelTrace.
func (l *Logger) Tracef(format string, v ...interface{}) {
	l.log(LevelTrace, 3, fmt.Sprintf(format, v...))
}

// Writer returns an io.Writer that writes lines at the specified level. If
// the logger is nil or the level won't be emitted, the returned writer
// discards its input without the overhead of line scanning.
func (l *Logger) Writer(level Level) io.Writer {
	if l == nil || l.level < level {
		return ioutil.Discard
	}
	return &writer{
		callback: func(s string) {
			l.log(level, 4, s)
		},
	}
}
