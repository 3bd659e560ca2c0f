package testsupport

import (
	"context"
	"path"
	"strings"
	"sync"

	"fbicheck/internal/events"
	"fbicheck/internal/index"
	"fbicheck/internal/services"
)

// Publisher records published events. FailNext makes the following publishes
// fail with a transient broker error until Reconnect is called.
type Publisher struct {
	mu         sync.Mutex
	events     []events.ChangeEvent
	keys       []string
	failing    bool
	reconnects int
	reconnErr  error
	closed     bool
}

// NewPublisher returns an empty recording publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(_ context.Context, ev events.ChangeEvent, routingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return services.Wrap(services.ErrTransientBroker, "broker", "publish", "connection closed", nil)
	}
	p.events = append(p.events, ev)
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *Publisher) Reconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnects++
	if p.reconnErr != nil {
		return p.reconnErr
	}
	p.failing = false
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// FailUntilReconnect makes Publish fail until Reconnect succeeds.
func (p *Publisher) FailUntilReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = true
}

// SetReconnectError makes Reconnect return err.
func (p *Publisher) SetReconnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnErr = err
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []events.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.ChangeEvent(nil), p.events...)
}

// RoutingKeys returns the routing key of each published event.
func (p *Publisher) RoutingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Reconnects reports how often Reconnect was called.
func (p *Publisher) Reconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reconnects
}

// Closed reports whether Close was called.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ByAction groups published paths by action.
func (p *Publisher) ByAction() map[events.Action][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[events.Action][]string)
	for _, ev := range p.events {
		out[ev.Action] = append(out[ev.Action], ev.Path)
	}
	return out
}

// Index is an in-memory index.Querier. Dirs mimics the prefix and depth
// bracket of the real directories query so prefix siblings leak through.
type Index struct {
	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]struct{}
	err   error
	calls int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{files: map[string]struct{}{}, dirs: map[string]struct{}{}}
}

// AddFiles records indexed file paths.
func (x *Index) AddFiles(paths ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, p := range paths {
		x.files[p] = struct{}{}
	}
}

// AddDirs records indexed directory paths.
func (x *Index) AddDirs(paths ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, p := range paths {
		x.dirs[p] = struct{}{}
	}
}

// SetError makes every query fail with err.
func (x *Index) SetError(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.err = err
}

// Calls reports the number of queries served.
func (x *Index) Calls() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls
}

func (x *Index) Files(_ context.Context, dir string) ([]index.Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls++
	if x.err != nil {
		return nil, x.err
	}
	var out []index.Record
	for p := range x.files {
		if path.Dir(p) == dir {
			out = append(out, index.Record{Path: p, Kind: index.KindFile})
		}
	}
	return out, nil
}

func (x *Index) Dirs(_ context.Context, dir string) ([]index.Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls++
	if x.err != nil {
		return nil, x.err
	}
	depth := index.Depth(dir)
	var out []index.Record
	for p := range x.dirs {
		// The directories index stores depth as the slash count.
		d := strings.Count(p, "/")
		if strings.HasPrefix(p, dir) && d >= depth-1 && d <= depth {
			out = append(out, index.Record{Path: p, Kind: index.KindDirectory})
		}
	}
	return out, nil
}
