// Package log is the CLI's human facing logger. Messages are rendered by a
// formatter, which picks between terminal styling and GitHub Actions
// annotations, and zap fields are appended as a JSON object.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap/zapcore"

	"github.com/speakeasy-api/vendorpatch/internal/charm"
	"github.com/speakeasy-api/vendorpatch/internal/env"
	"github.com/speakeasy-api/vendorpatch/internal/utils"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelErr     Level = "error"
	LevelSuccess Level = "success"
)

// Levels are the values accepted for the minimum level. Success messages are
// shown at the same threshold as info.
var Levels = []string{string(LevelInfo), string(LevelWarn), string(LevelErr)}

var severity = map[Level]int{
	LevelInfo:    0,
	LevelSuccess: 0,
	LevelWarn:    1,
	LevelErr:     2,
}

type Formatter func(l Logger, level Level, msg string) string

type Logger struct {
	level           Level
	associatedFile  string
	fields          []zapcore.Field
	interactiveOnly bool
	formatter       Formatter
	writer          io.Writer
}

type loggerContextKey struct{}

// With returns a copy of ctx carrying l.
func With(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// From returns the logger carried by ctx, or a default one.
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return New()
}

// New logs to stderr. The formatter follows the environment: annotations on
// GitHub Actions, styled text on a terminal, and prefixed plain lines
// otherwise.
func New() Logger {
	l := Logger{level: LevelInfo, formatter: BasicFormatter, writer: os.Stderr}
	switch {
	case env.IsGithubAction():
		l.formatter = GithubFormatter
	case !utils.IsTerminal(os.Stderr):
		l.formatter = PrefixedFormatter
	}
	return l
}

// Discard writes nothing.
func Discard() Logger {
	return New().WithWriter(io.Discard)
}

func (l Logger) WithLevel(level Level) Logger {
	l.level = level
	return l
}

// WithAssociatedFile ties warnings and errors to a file, which the GitHub
// formatter turns into an annotation.
func (l Logger) WithAssociatedFile(path string) Logger {
	l.associatedFile = path
	return l
}

// WithInteractiveOnly drops everything unless stdout is a terminal.
func (l Logger) WithInteractiveOnly() Logger {
	l.interactiveOnly = true
	return l
}

func (l Logger) WithFormatter(f Formatter) Logger {
	l.formatter = f
	return l
}

func (l Logger) WithWriter(w io.Writer) Logger {
	l.writer = w
	return l
}

func (l Logger) With(fields ...zapcore.Field) Logger {
	l.fields = append(append([]zapcore.Field(nil), l.fields...), fields...)
	return l
}

func (l Logger) Info(msg string, fields ...zapcore.Field)    { l.log(LevelInfo, msg, fields) }
func (l Logger) Warn(msg string, fields ...zapcore.Field)    { l.log(LevelWarn, msg, fields) }
func (l Logger) Error(msg string, fields ...zapcore.Field)   { l.log(LevelErr, msg, fields) }
func (l Logger) Success(msg string, fields ...zapcore.Field) { l.log(LevelSuccess, msg, fields) }

func (l Logger) Warnf(format string, a ...any) {
	l.Warn(fmt.Sprintf(format, a...))
}

func (l Logger) Successf(format string, a ...any) {
	l.Success(fmt.Sprintf(format, a...))
}

// Printf writes an unformatted line regardless of level.
func (l Logger) Printf(format string, a ...any) {
	l.emit(fmt.Sprintf(format, a...))
}

func (l Logger) PrintfStyled(style lipgloss.Style, format string, a ...any) {
	l.emit(style.Render(fmt.Sprintf(format, a...)))
}

func (l Logger) log(level Level, msg string, fields []zapcore.Field) {
	if severity[level] < severity[l.level] {
		return
	}

	fields = append(append([]zapcore.Field(nil), l.fields...), fields...)
	if msg == "" {
		// a bare error field becomes the message
		for i, field := range fields {
			if err, ok := field.Interface.(error); ok && field.Type == zapcore.ErrorType {
				msg = err.Error()
				fields = append(fields[:i:i], fields[i+1:]...)
				break
			}
		}
	}

	l.emit(l.formatter(l, level, msg) + encodeFields(fields))
}

func (l Logger) emit(line string) {
	if l.interactiveOnly && !utils.IsInteractive() {
		return
	}
	fmt.Fprintln(l.writer, line)
}

func BasicFormatter(_ Logger, level Level, msg string) string {
	switch level {
	case LevelWarn:
		return charm.Warning.Render(msg)
	case LevelErr:
		return charm.Error.Render(msg)
	case LevelSuccess:
		return charm.Success.Render(msg)
	default:
		return charm.Info.Render(msg)
	}
}

// PrefixedFormatter renders plain tab separated lines.
func PrefixedFormatter(_ Logger, level Level, msg string) string {
	switch level {
	case LevelWarn:
		return "WARN\t" + msg
	case LevelErr:
		return "ERROR\t" + msg
	default:
		return "INFO\t" + msg
	}
}

func GithubFormatter(l Logger, level Level, msg string) string {
	var command string
	switch level {
	case LevelWarn:
		command = "warning"
	case LevelErr:
		command = "error"
	default:
		return msg
	}

	var attrs string
	if l.associatedFile != "" {
		attrs = " file=" + filepath.ToSlash(filepath.Clean(l.associatedFile))
	}
	return fmt.Sprintf("::%s%s::%s", command, attrs, msg)
}

func encodeFields(fields []zapcore.Field) string {
	if len(fields) == 0 {
		return ""
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		// zap's own error encoding adds verbose stack traces
		if err, ok := field.Interface.(error); ok && field.Type == zapcore.ErrorType {
			enc.AddString(field.Key, err.Error())
			continue
		}
		field.AddTo(enc)
	}

	data, err := json.Marshal(enc.Fields)
	if err != nil {
		return ""
	}
	return "\t" + string(data)
}
