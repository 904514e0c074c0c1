package eventbus

import (
	"context"
	"log/slog"
)

// LogConsumer logs every event.
type LogConsumer struct {
	log *slog.Logger
}

func NewLogConsumer(logger *slog.Logger) *LogConsumer { return &LogConsumer{log: logger} }

func (c *LogConsumer) HandleEvent(ctx context.Context, evt Event) error {
	attrs := []any{"id", evt.ID, "actor", evt.Actor}
	if evt.Doctype != "" {
		attrs = append(attrs, "doctype", evt.Doctype, "name", evt.Name, "fields", evt.Fields)
	}
	c.log.InfoContext(ctx, "event: "+string(evt.Type), attrs...)
	return nil
}
