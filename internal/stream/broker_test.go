package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBroker_PublishToSubscribers(t *testing.T) {
	b := NewBroker()

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	require.Equal(t, 2, b.Clients())

	delivered := b.Publish(Event{Name: EventMessage, Data: "1"})
	require.Equal(t, 2, delivered)

	require.Equal(t, Event{Name: EventMessage, Data: "1"}, <-ch1)
	require.Equal(t, Event{Name: EventMessage, Data: "1"}, <-ch2)
}

func TestBroker_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroker()
	require.Equal(t, 0, b.Publish(Event{Data: "nobody"}))
}

func TestBroker_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroker()

	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
	require.Equal(t, 0, b.Clients())
}

func TestBroker_DropsSlowClient(t *testing.T) {
	b := NewBroker(WithBufferSize(2))

	slow, cancelSlow := b.Subscribe()
	defer cancelSlow()
	fast, cancelFast := b.Subscribe()
	defer cancelFast()

	var received []string
	for _, data := range []string{"1", "2", "3"} {
		b.Publish(Event{Data: data})
		received = append(received, (<-fast).Data)
	}

	require.Equal(t, []string{"1", "2", "3"}, received)
	require.Equal(t, 1, b.Clients())

	// the slow client keeps what was buffered, then sees the close
	require.Equal(t, "1", (<-slow).Data)
	require.Equal(t, "2", (<-slow).Data)
	_, ok := <-slow
	require.False(t, ok)
}

func TestBroker_Shutdown(t *testing.T) {
	b := NewBroker()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Shutdown()
	b.Shutdown()

	_, ok := <-ch
	require.False(t, ok)
	require.True(t, b.Closed())
	require.Equal(t, 0, b.Clients())

	late, lateCancel := b.Subscribe()
	defer lateCancel()
	_, ok = <-late
	require.False(t, ok, "subscribe after shutdown returns a closed channel")
}

func TestBroker_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBroker(WithBufferSize(1))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := b.Subscribe()
			go func() {
				for range ch {
				}
			}()
			cancel()
		}()
	}
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(Event{Data: "tick"})
		}()
	}
	wg.Wait()

	b.Shutdown()
	require.Equal(t, 0, b.Clients())
}
