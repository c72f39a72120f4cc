// Package logging adapts github.com/op/go-logging to the es.Logger interface
// used throughout triggersync.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/getpup/pupsourcing/es"
	gol "github.com/op/go-logging"
)

// Format prints time, module and level before the message.
const Format = `%{time:15:04:05.000} %{module} %{level:.4s} %{message}`

// Logger writes es.Logger calls to a go-logging backend.
// Key/value arguments are appended to the message as key=value pairs.
type Logger struct {
	l *gol.Logger
}

// Compile-time check that Logger implements es.Logger.
var _ es.Logger = (*Logger)(nil)

// New creates a logger for module that writes messages at level or above to w.
// level is a go-logging level name such as "debug", "info" or "error".
func New(module, level string, w io.Writer) (*Logger, error) {
	lvl, err := gol.LogLevel(strings.ToUpper(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	backend := gol.NewLogBackend(w, "", 0)
	formatted := gol.NewBackendFormatter(backend, gol.MustStringFormatter(Format))
	leveled := gol.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, module)

	l := &gol.Logger{Module: module}
	l.SetBackend(leveled)
	return &Logger{l: l}, nil
}

// Debug implements es.Logger.
func (l *Logger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.l.Debug(render(msg, args))
}

// Info implements es.Logger.
func (l *Logger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.l.Info(render(msg, args))
}

// Error implements es.Logger.
func (l *Logger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.l.Error(render(msg, args))
}

// render appends key/value pairs to msg. A trailing key without a value is
// printed with the value "MISSING".
func render(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteByte(' ')
		fmt.Fprint(&b, args[i])
		b.WriteByte('=')
		if i+1 < len(args) {
			v := fmt.Sprint(args[i+1])
			if strings.ContainsAny(v, " \t\n\"") {
				v = fmt.Sprintf("%q", v)
			}
			b.WriteString(v)
		} else {
			b.WriteString("MISSING")
		}
	}
	return b.String()
}
