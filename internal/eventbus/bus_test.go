package eventbus

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) HandleEvent(_ context.Context, evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func TestBus_DispatchesInOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	b := New(16, logger)
	c := &collector{}
	b.Subscribe("collector", c)
	b.Subscribe("failing", HandlerFunc(func(context.Context, Event) error { return errors.New("nope") }))
	b.Start(context.Background())

	b.Publish(NewEvent(UserLoggedIn, "ann"))
	b.Publish(DocumentSavedEvent("ann", "Supplier", "SUP-001", []string{"tax_id"}))
	b.Stop()

	require.Len(t, c.events, 2)
	assert.Equal(t, UserLoggedIn, c.events[0].Type)
	assert.Equal(t, "SUP-001", c.events[1].Name)
	assert.Equal(t, []string{"tax_id"}, c.events[1].Fields)
	assert.NotEmpty(t, c.events[0].ID)
	assert.Contains(t, buf.String(), "handler=failing")
}

func TestBus_DropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	b := New(1, slog.New(slog.NewTextHandler(&buf, nil)))
	b.Publish(NewEvent(UserLoggedOut, "a"))
	b.Publish(NewEvent(UserLoggedOut, "b"))
	assert.Contains(t, buf.String(), "buffer full")
}

func TestBus_DrainsOnCancel(t *testing.T) {
	b := New(8, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	c := &collector{}
	b.Subscribe("collector", c)
	b.Publish(NewEvent(UserLoggedIn, "a"))
	b.Publish(NewEvent(UserLoggedOut, "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Start(ctx)
	b.Stop()
	assert.Len(t, c.events, 2)
}

func TestLogConsumer(t *testing.T) {
	var buf bytes.Buffer
	lc := NewLogConsumer(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, lc.HandleEvent(context.Background(), DocumentSavedEvent("ann", "Supplier", "SUP-001", []string{"tax_id"})))
	assert.Contains(t, buf.String(), "event: DocumentSaved")
	assert.Contains(t, buf.String(), "doctype=Supplier")
}
