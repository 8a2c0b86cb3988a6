// Package logger configures the process-wide slog logger and hands out
// component, request and job scoped loggers.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

type jobKey struct{}

type jobAttrs struct {
	jobID     string
	sessionID string
	jobType   string
}

func Setup(level string, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// WithJob tags ctx with the identifiers of the job being processed so every
// log line written through FromContext carries them.
func WithJob(ctx context.Context, jobType, jobID, sessionID string) context.Context {
	return context.WithValue(ctx, jobKey{}, jobAttrs{jobID: jobID, sessionID: sessionID, jobType: jobType})
}

func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if requestID, ok := ctx.Value(contextKey{}).(string); ok {
		logger = logger.With("request_id", requestID)
	}
	if job, ok := ctx.Value(jobKey{}).(jobAttrs); ok {
		logger = logger.With("job_type", job.jobType, "job_id", job.jobID, "session_id", job.sessionID)
	}
	return logger
}

func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
