package broker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"fbicheck/internal/events"
)

// WriterPublisher prints encoded events one per line instead of sending them.
// It backs the --dry-run flags.
type WriterPublisher struct {
	mu      sync.Mutex
	w       io.Writer
	encoder events.Encoder
	count   int
}

// NewWriterPublisher writes to w using encoder (JSON when nil).
func NewWriterPublisher(w io.Writer, encoder events.Encoder) *WriterPublisher {
	if encoder == nil {
		encoder = events.JSONEncoder{}
	}
	return &WriterPublisher{w: w, encoder: encoder}
}

func (p *WriterPublisher) Publish(_ context.Context, ev events.ChangeEvent, routingKey string) error {
	body, err := p.encoder.Encode(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if routingKey != "" {
		_, err = fmt.Fprintf(p.w, "[%s] %s\n", routingKey, body)
	} else {
		_, err = fmt.Fprintf(p.w, "%s\n", body)
	}
	if err == nil {
		p.count++
	}
	return err
}

// Count returns how many events were written.
func (p *WriterPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *WriterPublisher) Reconnect(context.Context) error { return nil }

func (p *WriterPublisher) Close() error { return nil }
