package timeline

import (
	"sync"

	"github.com/rs/zerolog"
)

// Listener receives events after they are persisted. Implementations must
// not block; slow consumers lose events rather than stalling writes.
type Listener interface {
	Name() string
	OnEvent(e *Event)
}

type subscriber struct {
	listener Listener
	ch       chan *Event
	done     chan struct{}
}

// Dispatcher fans persisted events out to registered listeners. Each
// listener gets its own bounded channel and goroutine, so one failing or
// saturated subscriber never affects another, and never affects the write
// path.
type Dispatcher struct {
	mu   sync.RWMutex
	subs []*subscriber
	log  zerolog.Logger
	wg   sync.WaitGroup
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// Subscribe registers a listener with the given channel capacity.
func (d *Dispatcher) Subscribe(l Listener, buffer int) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{
		listener: l,
		ch:       make(chan *Event, buffer),
		done:     make(chan struct{}),
	}

	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(sub)
}

func (d *Dispatcher) run(sub *subscriber) {
	defer d.wg.Done()
	for {
		select {
		case e := <-sub.ch:
			d.deliver(sub, e)
		case <-sub.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case e := <-sub.ch:
					d.deliver(sub, e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(sub *subscriber, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("listener", sub.listener.Name()).
				Str("event_id", e.ID.String()).
				Interface("panic", r).
				Msg("event listener panicked")
		}
	}()
	sub.listener.OnEvent(e)
}

// Publish hands an event to every subscriber. A subscriber whose buffer is
// full is skipped with a warning.
func (d *Dispatcher) Publish(e *Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, sub := range d.subs {
		select {
		case sub.ch <- e:
		default:
			d.log.Warn().
				Str("listener", sub.listener.Name()).
				Str("event_id", e.ID.String()).
				Str("event_type", string(e.Type)).
				Msg("listener buffer full, event dropped")
		}
	}
}

// Close stops all subscriber goroutines after draining queued events.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	d.wg.Wait()
}

// AuditListener logs every persisted event. Registered by the entry point
// as the default dispatcher subscriber.
type AuditListener struct {
	Log zerolog.Logger
}

func (a *AuditListener) Name() string { return "audit" }

func (a *AuditListener) OnEvent(e *Event) {
	a.Log.Info().
		Str("event_id", e.ID.String()).
		Str("record_id", e.RecordID.String()).
		Str("event_type", string(e.Type)).
		Str("event_date", DateOnly(e.EventDate).Format("2006-01-02")).
		Str("title", e.Title).
		Msg("clinical event emitted")
}
