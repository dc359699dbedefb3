package dbus

import "github.com/rs/zerolog"

// LogLevel is the severity of a line passed to a Logger.
type LogLevel int

const (
	LevelVerbose LogLevel = iota
	LevelDebug
	LevelError
)

// Logger is the logging sink Conn (WithLogger) and the server-side auth
// engine accept; the client-side auth and the cookie keyring take none. A
// Conn built without one discards everything it would have logged.
type Logger interface {
	Log(level LogLevel, lines ...string)
}

// zerologLogger backs Logger with a zerolog.Logger, the way
// r2northstar/atlas's pkg/atlas/server.go threads one zerolog.Logger
// through its components.
type zerologLogger struct {
	zl zerolog.Logger
}

// NewLogger wraps zl as a Logger.
func NewLogger(zl zerolog.Logger) Logger {
	return zerologLogger{zl: zl}
}

func (z zerologLogger) Log(level LogLevel, lines ...string) {
	for _, line := range lines {
		var ev *zerolog.Event
		switch level {
		case LevelError:
			ev = z.zl.Error()
		case LevelDebug:
			ev = z.zl.Debug()
		default:
			ev = z.zl.Trace()
		}
		ev.Msg(line)
	}
}

// discardLogger is the default Logger for a Conn that was not given one.
var discardLogger Logger = zerologLogger{zl: zerolog.Nop()}
