package logger

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const RunIDKey contextKey = "run_id"
const TicketIDKey contextKey = "ticket_id"

// NewRunID returns a fresh, time-sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

func WithTicketID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, TicketIDKey, id)
}

func GetTicketID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(TicketIDKey).(int)
	return id, ok
}

// FromContext returns the default logger annotated with the run and ticket ids found in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := GetRunID(ctx); id != "" {
		l = l.With("run_id", id)
	}
	if id, ok := GetTicketID(ctx); ok {
		l = l.With("ticket_id", id)
	}
	return l
}
