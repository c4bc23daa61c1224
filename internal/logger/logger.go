// Package logger provides centralized logging for cmdhelper.
// Inside the game there is no console, so the DLL normally writes to a log file
// next to the game executable; the CLI logs to stderr.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Logger is the global logger instance used throughout cmdhelper.
var Logger *log.Logger

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
	closer io.Closer
	stamps bool
)

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetTimeFormat("")
	Logger.SetLevel(log.InfoLevel)
}

// Configure sets the level and destination of the global logger.
// An empty logFile keeps stderr. File output carries timestamps since the
// file outlives a single game session.
func Configure(logLevel string, logFile string) error {
	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = os.Stderr
	var c io.Closer
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		out, c = file, file
	}

	l := log.New(out)
	if logFile != "" {
		l.SetReportTimestamp(true)
		l.SetTimeFormat("2006-01-02 15:04:05.000")
	} else {
		l.SetTimeFormat("")
	}
	l.SetLevel(parseLogLevel(logLevel))

	if closer != nil {
		_ = closer.Close()
	}
	Logger, output, closer, stamps = l, out, c, logFile != ""
	return nil
}

// SetOutput redirects the global logger, typically to a buffer in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	Logger.SetOutput(w)
}

// parseLogLevel converts string to log level
func parseLogLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "info", "":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

// HookInstalled logs one hook installation.
func HookInstalled(name string, kind string, site, original uintptr) {
	Debug("Hook installed", "hook", name, "kind", kind, "site", Addr(site), "original", Addr(original))
}

// Addr formats a host address the way every log line shows it.
func Addr(a uintptr) string {
	return fmt.Sprintf("0x%08X", a)
}

// NewStyledLogger creates a component logger with lipgloss level badges
// (e.g. "hook", "registry", "moonloader"). It writes wherever the global logger does.
func NewStyledLogger(prefix string) *log.Logger {
	styles := log.DefaultStyles()

	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("33")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("196")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("240")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("214")).
		Foreground(lipgloss.Color("15"))

	styles.Keys["state"] = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	styles.Keys["build"] = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styles.Keys["addr"] = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styles.Keys["command"] = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	styles.Keys["module"] = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))

	styles.Values["state"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	styles.Values["error"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	mu.Lock()
	out, ts := output, stamps
	mu.Unlock()

	componentLogger := log.NewWithOptions(out, log.Options{
		Prefix:          prefix + " ",
		ReportTimestamp: ts,
		TimeFormat:      "2006-01-02 15:04:05.000",
	})
	componentLogger.SetStyles(styles)
	componentLogger.SetLevel(Logger.GetLevel())

	return componentLogger
}
