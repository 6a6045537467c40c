// Package logger provides the console and no-op ports.Logger
// implementations. Message keys are translated with go-l10n.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/user/gopseek/pkg/ports"
)

const (
	ansiReset = "\033[0m"
	ansiCyan  = "\033[36m"
)

// levelColors is indexed by ports.LogLevel; info stays uncolored.
var levelColors = [...]string{
	ports.LevelDebug: "\033[90m",
	ports.LevelWarn:  "\033[33m",
	ports.LevelError: "\033[31m",
	ports.LevelQuiet: "",
}

// sink is shared by a logger and every component logger derived from it,
// so lines from the sheet workers never interleave.
type sink struct {
	mu     sync.Mutex
	color  bool
	out    io.Writer // debug and info
	errOut io.Writer // warn and error
}

// ConsoleLogger writes translated messages, one per line.
type ConsoleLogger struct {
	level     ports.LogLevel
	component string
	sink      *sink
}

// NewConsole logs debug and info to stdout and the rest to stderr,
// colored when stdout is a terminal.
func NewConsole(level ports.LogLevel) *ConsoleLogger {
	fd := os.Stdout.Fd()
	return &ConsoleLogger{
		level: level,
		sink: &sink{
			color:  isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
			out:    os.Stdout,
			errOut: os.Stderr,
		},
	}
}

// NewWriter logs every level to w without color.
func NewWriter(level ports.LogLevel, w io.Writer) *ConsoleLogger {
	return &ConsoleLogger{level: level, sink: &sink{out: w, errOut: w}}
}

// Level returns the minimum level this logger emits.
func (l *ConsoleLogger) Level() ports.LogLevel {
	return l.level
}

func (l *ConsoleLogger) Debug(msg string, args ...interface{}) { l.emit(ports.LevelDebug, msg, args) }
func (l *ConsoleLogger) Info(msg string, args ...interface{})  { l.emit(ports.LevelInfo, msg, args) }
func (l *ConsoleLogger) Warn(msg string, args ...interface{})  { l.emit(ports.LevelWarn, msg, args) }
func (l *ConsoleLogger) Error(msg string, args ...interface{}) { l.emit(ports.LevelError, msg, args) }

// WithComponent returns a logger sharing this one's output that tags each
// line with component.
func (l *ConsoleLogger) WithComponent(component string) ports.Logger {
	return &ConsoleLogger{level: l.level, component: component, sink: l.sink}
}

func (l *ConsoleLogger) emit(level ports.LogLevel, msg string, args []interface{}) {
	if level < l.level {
		return
	}
	text := l10n.F(msg, args...)
	s := l.sink

	prefix := ""
	if l.component != "" {
		prefix = "[" + l.component + "] "
		if s.color {
			prefix = ansiCyan + "[" + l.component + "]" + ansiReset + " "
		}
	}
	if c := levelColors[level]; s.color && c != "" {
		text = c + text + ansiReset
	}

	w := s.out
	if level >= ports.LevelWarn {
		w = s.errOut
	}
	s.mu.Lock()
	fmt.Fprintln(w, prefix+text)
	s.mu.Unlock()
}
