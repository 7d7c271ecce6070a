package main

import (
	"context"
	"log/slog"

	"github.com/guildmod/warden/reactmon"

	"go.opentelemetry.io/otel/trace"
)

// errorReporter logs unexpected monitor errors at ERROR, tagged with the active trace if any.
type errorReporter struct {
	logger *slog.Logger
}

var _ reactmon.ErrorReporter = (*errorReporter)(nil)

func (r *errorReporter) ReportUnexpectedError(ctx context.Context, where string, err error) {
	unexpectedErrorsReported.Inc()
	logger := r.logger
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With("trace_id", sc.TraceID().String())
	}
	logger.Error("unexpected error in reaction monitor", "where", where, "err", err)
}
