package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"momentum-screener/internal/trace"
	"momentum-screener/internal/types"
)

var (
	mu sync.RWMutex
	// Global logger instance
	globalLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	// Whether detailed logging is enabled
	detailedLogging bool
	// Rotating file sink, nil unless LOG_FILE is set
	fileSink *lumberjack.Logger
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json or text
	DetailedLogging bool   // Enable detailed logs

	File       string // optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init initializes the global logger based on environment variables
func Init() error {
	return InitWithConfig(LoadConfigFromEnv())
}

// LoadConfigFromEnv loads logging configuration from environment variables
func LoadConfigFromEnv() LogConfig {
	return LogConfig{
		Level:           getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:          getEnvOrDefault("LOG_FORMAT", "json"),
		DetailedLogging: getEnvOrDefault("LOG_DETAILED", "false") == "true",
		File:            os.Getenv("LOG_FILE"),
		MaxSizeMB:       getEnvInt("LOG_MAX_SIZE_MB", 50),
		MaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 5),
		MaxAgeDays:      getEnvInt("LOG_MAX_AGE_DAYS", 14),
	}
}

// InitWithConfig initializes the logger with a specific configuration, writing to stdout
// and, when File is set, to a size-rotated log file as well.
func InitWithConfig(config LogConfig) error {
	var out io.Writer = os.Stdout
	var sink *lumberjack.Logger
	if config.File != "" {
		sink = &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, sink)
	}
	InitWithWriter(out, config)

	mu.Lock()
	fileSink = sink
	mu.Unlock()
	return nil
}

// InitWithWriter points the global logger at w. Tests use it to capture output.
func InitWithWriter(w io.Writer, config LogConfig) {
	// Source is added by hand in logWithTrace so the wrapper frames are skipped
	opts := &slog.HandlerOptions{Level: parseLogLevel(config.Level)}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler).With("service", "momentum-screener")

	mu.Lock()
	globalLogger = l
	detailedLogging = config.DetailedLogging
	mu.Unlock()
	slog.SetDefault(l)
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	return err
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

// Debug logs a debug message
func Debug(ctx context.Context, msg string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	logWithTrace(ctx, slog.LevelDebug, msg, 2, args...)
}

// Info logs an info message
func Info(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, 2, args...)
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelWarn, msg, 2, args...)
}

// Error logs an error message
func Error(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelError, msg, 2, args...)
}

// ErrorWithErr logs an error message with an error object and marks the active span failed
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	allArgs := append([]any{"error", err}, args...)
	logWithTrace(ctx, slog.LevelError, msg, 2, allArgs...)
}

func recordSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// logWithTrace logs a message with trace ID and span ID if available.
// skip is the number of frames between runtime.Caller and the real caller.
func logWithTrace(ctx context.Context, level slog.Level, msg string, skip int, args ...any) {
	if traceID, spanID, ok := trace.GetTraceFields(ctx); ok {
		args = append([]any{"trace_id", traceID, "span_id", spanID}, args...)
	}

	mu.RLock()
	l, detailed := globalLogger, detailedLogging
	mu.RUnlock()

	if detailed {
		if pc, file, line, ok := runtime.Caller(skip); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				args = append(args, "source", slog.GroupValue(
					slog.String("function", fn.Name()),
					slog.String("file", file),
					slog.Int("line", line),
				))
			}
		}
	}

	l.Log(ctx, level, msg, args...)
}

// OperationTimer measures an operation and ends its span
type OperationTimer struct {
	ctx    context.Context
	span   oteltrace.Span
	start  time.Time
	fields []any
}

// StartOperation starts timing an operation inside a new span
func StartOperation(ctx context.Context, operation string, fields ...any) *OperationTimer {
	ctx, span := trace.StartSpan(ctx, operation)
	span.SetAttributes(toAttributes(fields)...)

	Debug(ctx, "Operation started", append([]any{"operation", operation}, fields...)...)

	return &OperationTimer{
		ctx:    ctx,
		span:   span,
		start:  time.Now(),
		fields: fields,
	}
}

// End completes the operation timer and logs the duration
func (ot *OperationTimer) End(additionalFields ...any) time.Duration {
	duration := time.Since(ot.start)

	ot.span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
	ot.span.SetAttributes(toAttributes(additionalFields)...)
	ot.span.SetStatus(codes.Ok, "completed")
	ot.span.End()

	fields := append(append([]any{}, ot.fields...), "duration_ms", duration.Milliseconds())
	Debug(ot.ctx, "Operation completed", append(fields, additionalFields...)...)
	return duration
}

// EndWithError completes the operation timer with an error
func (ot *OperationTimer) EndWithError(err error, additionalFields ...any) time.Duration {
	duration := time.Since(ot.start)

	ot.span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
	recordSpanError(ot.ctx, err)
	ot.span.End()

	fields := append(append([]any{}, ot.fields...), "duration_ms", duration.Milliseconds(), "error", err)
	logWithTrace(ot.ctx, slog.LevelWarn, "Operation failed", 2, append(fields, additionalFields...)...)
	return duration
}

// GetContext returns the context carrying the operation span
func (ot *OperationTimer) GetContext() context.Context {
	return ot.ctx
}

func toAttributes(fields []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		}
	}
	return attrs
}

// Outcome logs the verdict for one ticker. Errors log at WARN so they stand apart from plain misses.
func Outcome(ctx context.Context, o types.ScreeningOutcome, fields ...any) {
	status := o.Status()

	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("screening_outcome", oteltrace.WithAttributes(
			attribute.String("symbol", o.Symbol),
			attribute.String("status", status),
		))
	}

	allFields := append([]any{
		"type", "OUTCOME",
		"symbol", o.Symbol,
		"status", status,
	}, fields...)

	switch status {
	case types.StatusError:
		allFields = append(allFields, "error_kind", string(o.ErrorKind), "error", o.Error)
		logWithTrace(ctx, slog.LevelWarn, "Ticker could not be evaluated", 2, allFields...)
	case types.StatusPassed:
		if o.Snapshot != nil {
			allFields = append(allFields, "price", o.Snapshot.CurrentPrice, "volume", o.Snapshot.CurrentVolume)
		}
		logWithTrace(ctx, slog.LevelInfo, "Ticker passed screening", 2, allFields...)
	default:
		if IsDebugEnabled() {
			logWithTrace(ctx, slog.LevelDebug, "Ticker did not pass", 2, append(allFields, "failed", failedCriteria(o))...)
		}
	}
}

func failedCriteria(o types.ScreeningOutcome) string {
	var names []string
	for _, c := range o.Criteria {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ",")
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return detailedLogging
}
