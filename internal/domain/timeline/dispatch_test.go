package timeline

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type collectingListener struct {
	name string
	mu   sync.Mutex
	got  []*Event
}

func (l *collectingListener) Name() string { return l.name }

func (l *collectingListener) OnEvent(e *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, e)
}

func (l *collectingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.got)
}

type panicListener struct{}

func (panicListener) Name() string   { return "panics" }
func (panicListener) OnEvent(*Event) { panic("listener bug") }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcher_DeliversToAllSubscribers(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	defer d.Close()

	a := &collectingListener{name: "a"}
	b := &collectingListener{name: "b"}
	d.Subscribe(a, 8)
	d.Subscribe(b, 8)

	e := &Event{ID: uuid.New(), Type: TypeNote}
	d.Publish(e)

	waitFor(t, func() bool { return a.count() == 1 && b.count() == 1 })
}

func TestDispatcher_PanicIsolatedPerSubscriber(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	defer d.Close()

	healthy := &collectingListener{name: "healthy"}
	d.Subscribe(panicListener{}, 8)
	d.Subscribe(healthy, 8)

	d.Publish(&Event{ID: uuid.New(), Type: TypeNote})
	d.Publish(&Event{ID: uuid.New(), Type: TypeNote})

	waitFor(t, func() bool { return healthy.count() == 2 })
}

func TestDispatcher_SaturatedSubscriberDoesNotBlockPublish(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	block := make(chan struct{})
	slow := &blockingListener{release: block}
	d.Subscribe(slow, 1)

	// Far more events than the buffer holds; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Publish(&Event{ID: uuid.New(), Type: TypeNote})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated subscriber")
	}

	close(block)
	d.Close()
}

type blockingListener struct {
	release chan struct{}
}

func (l *blockingListener) Name() string { return "slow" }

func (l *blockingListener) OnEvent(*Event) {
	<-l.release
}

func TestDispatcher_CloseDrainsQueued(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	l := &collectingListener{name: "drain"}
	d.Subscribe(l, 16)

	for i := 0; i < 10; i++ {
		d.Publish(&Event{ID: uuid.New(), Type: TypeNote})
	}
	d.Close()

	if l.count() != 10 {
		t.Errorf("expected all queued events delivered before close, got %d", l.count())
	}
}

func TestAuditListener_DoesNotPanic(t *testing.T) {
	l := &AuditListener{Log: zerolog.Nop()}
	desc := "d"
	l.OnEvent(&Event{
		ID:          uuid.New(),
		RecordID:    uuid.New(),
		Type:        TypeNote,
		EventDate:   date(2026, 3, 1),
		RecordedAt:  time.Now(),
		Title:       "t",
		Description: &desc,
	})
}
