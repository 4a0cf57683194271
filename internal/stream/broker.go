// Package stream fans events out to server-sent event clients.
package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/htmx-go-timer/internal/telemetry"
)

const (
	// EventMessage carries the stopwatch display text.
	EventMessage = "message"
	// EventReload tells the page the bundle was rebuilt.
	EventReload = "reload"

	defaultBufferSize = 8
)

// Event is a single server-sent event.
type Event struct {
	Name string
	Data string
}

// Broker keeps the set of connected clients and broadcasts events to them.
// Publishing never blocks: a client whose buffer is full is dropped and its
// channel closed, the browser reconnects on its own.
type Broker struct {
	mu         sync.RWMutex
	nextID     int
	clients    map[int]chan Event
	bufferSize int
	closed     bool
	metrics    *telemetry.Metrics
}

// Option configures a Broker.
type Option func(*Broker)

// WithBufferSize sets the number of events buffered per client.
func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBroker creates a broker with no clients.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		clients:    make(map[int]chan Event),
		bufferSize: defaultBufferSize,
		metrics:    telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a client. The returned function unsubscribes and
// closes the channel, it is safe to call more than once. After Shutdown the
// channel is returned already closed.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.clients[id] = ch
	count := len(b.clients)
	b.mu.Unlock()

	b.metrics.ActiveClients.Add(context.Background(), 1)
	log.Debug().Int("clients", count).Msg("Client added")

	return ch, func() { b.remove(id) }
}

// Publish sends ev to every client without blocking and returns the number
// of clients it was delivered to.
func (b *Broker) Publish(ev Event) int {
	b.mu.RLock()
	delivered := 0
	var dropped []int
	for id, ch := range b.clients {
		select {
		case ch <- ev:
			delivered++
		default:
			dropped = append(dropped, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range dropped {
		if b.remove(id) {
			b.metrics.ClientsDroppedTotal.Add(context.Background(), 1)
			log.Warn().Int("client", id).Msg("Client buffer full, dropping client")
		}
	}

	b.metrics.EventsPublishedTotal.Add(context.Background(), 1)

	return delivered
}

// Clients returns the number of connected clients.
func (b *Broker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Closed reports whether Shutdown has been called.
func (b *Broker) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Shutdown closes all clients and rejects new subscriptions.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	clients := b.clients
	b.clients = make(map[int]chan Event)
	b.mu.Unlock()

	for _, ch := range clients {
		close(ch)
	}
	b.metrics.ActiveClients.Add(context.Background(), -int64(len(clients)))

	log.Info().Int("clients", len(clients)).Msg("Event broker shut down")
}

func (b *Broker) remove(id int) bool {
	b.mu.Lock()
	ch, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
		close(ch)
	}
	count := len(b.clients)
	b.mu.Unlock()

	if ok {
		b.metrics.ActiveClients.Add(context.Background(), -1)
		log.Debug().Int("clients", count).Msg("Removed client")
	}
	return ok
}
