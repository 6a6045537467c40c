package ports

import "fmt"

// LogLevel is the minimum severity a logger emits.
type LogLevel int

const (
	// LevelDebug covers index building, seeks and decode passes.
	LevelDebug LogLevel = iota
	// LevelInfo covers command progress.
	LevelInfo
	LevelWarn
	LevelError
	// LevelQuiet suppresses all output.
	LevelQuiet
)

var levelNames = [...]string{"debug", "info", "warn", "error", "quiet"}

// String returns the level name.
func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLogLevel parses a level name. An empty name is LevelInfo.
func ParseLogLevel(s string) (LogLevel, error) {
	if s == "" {
		return LevelInfo, nil
	}
	for i, name := range levelNames {
		if name == s {
			return LogLevel(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger logs translatable message keys. msg is a format string that doubles
// as the lookup key for translations, so it must be a constant.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithComponent returns a Logger that prefixes messages with component.
	WithComponent(component string) Logger
}
