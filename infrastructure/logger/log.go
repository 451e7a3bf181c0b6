package logger

import (
	"fmt"
	"os"
	"time"
)

type logEntry struct {
	level Level
	log   []byte
}

// Logger is a subsystem logger that writes formatted, leveled messages to
// the Backend it was created from.
type Logger struct {
	lvl       Level
	tag       string
	b         *Backend
	writeChan chan logEntry
}

// SetLevel changes the logging level of the Logger.
func (l *Logger) SetLevel(level Level) {
	l.lvl = level
}

// Level returns the current logging level of the Logger.
func (l *Logger) Level() Level {
	return l.lvl
}

func (l *Logger) write(level Level, s string) {
	if level < l.lvl {
		return
	}
	line := fmt.Sprintf("%s [%s] %s %s\n", time.Now().Format("2006-01-02 15:04:05.000"), level, l.tag, s)
	if !l.b.IsRunning() {
		fmt.Fprint(os.Stdout, line)
		return
	}
	l.writeChan <- logEntry{level: level, log: []byte(line)}
}

// Tracef formats and logs a message at the trace level.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.write(LevelTrace, fmt.Sprintf(format, args...))
}

// Debugf formats and logs a message at the debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.write(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof formats and logs a message at the info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf formats and logs a message at the warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.write(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf formats and logs a message at the error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.write(LevelError, fmt.Sprintf(format, args...))
}

// Criticalf formats and logs a message at the critical level.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.write(LevelCritical, fmt.Sprintf(format, args...))
}

// BackendLog is the logging backend every subsystem logger in the process
// is registered against, matching the one-backend-many-subsystems shape
// the node's logging is built around.
var BackendLog = NewBackend()

var subsystems []*Logger

// RegisterSubSystem returns a Logger for the given subsystem tag and keeps
// track of it so SetLogLevels can retroactively change every subsystem's
// verbosity at once (e.g. from tokend's --debuglevel flag).
func RegisterSubSystem(tag string) *Logger {
	l := BackendLog.Logger(tag)
	l.SetLevel(LevelInfo)
	subsystems = append(subsystems, l)
	return l
}

// SetLogLevels sets the logging level for every registered subsystem.
func SetLogLevels(levelStr string) error {
	level, ok := LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("invalid log level %q", levelStr)
	}
	for _, l := range subsystems {
		l.SetLevel(level)
	}
	return nil
}
