package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

type mockService struct {
	name     string
	startErr error
	stopErr  error
	stopped  *[]string
	mu       *sync.Mutex
	eventBus *EventBus
}

func (m *mockService) Name() string                    { return m.name }
func (m *mockService) Start(ctx context.Context) error { return m.startErr }
func (m *mockService) SetEventBus(bus *EventBus)       { m.eventBus = bus }
func (m *mockService) Stop(ctx context.Context) error {
	if m.stopped != nil {
		m.mu.Lock()
		*m.stopped = append(*m.stopped, m.name)
		m.mu.Unlock()
	}
	return m.stopErr
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("event not received within timeout")
		return Event{}
	}
}

func TestEventBus_SubscribeAndPublish(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(EventTypeJobStarted)

	bus.Publish(Event{Type: EventTypeJobStarted, Source: "pipeline", Data: map[string]interface{}{"job_id": "j1"}})

	ev := receive(t, ch)
	assert.Equal(t, EventTypeJobStarted, ev.Type)
	assert.Equal(t, "pipeline", ev.Source)
	assert.Equal(t, "j1", ev.Data["job_id"])
	assert.False(t, ev.Timestamp.IsZero())
}

func TestEventBus_SubscribeAllSeesLaterTypes(t *testing.T) {
	bus := NewEventBus(10)
	all := bus.SubscribeAll()

	bus.Publish(Event{Type: EventTypeDetection})
	bus.Publish(Event{Type: EventTypeJobCompleted})

	assert.Equal(t, EventTypeDetection, receive(t, all).Type)
	assert.Equal(t, EventTypeJobCompleted, receive(t, all).Type)
}

func TestEventBus_PublishDropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	ch := bus.Subscribe(EventTypeJobProgress)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(Event{Type: EventTypeJobProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestEventBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(EventTypeJobFailed)
	all := bus.SubscribeAll()

	bus.Unsubscribe(EventTypeJobFailed, ch)
	_, ok := <-ch
	assert.False(t, ok, "unsubscribed channel should be closed")

	bus.Close()
	_, ok = <-all
	assert.False(t, ok, "close should close catch-all subscribers")

	// Publishing and closing again after Close must not panic
	bus.Publish(Event{Type: EventTypeJobFailed})
	bus.Close()
	bus.UnsubscribeAll(all)
}

func TestEventBus_SubscribeWithHandler(t *testing.T) {
	bus := NewEventBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 1)
	bus.SubscribeWithHandler(ctx, EventTypeArchivePublished, func(ctx context.Context, ev Event) error {
		got <- ev
		return nil
	})

	bus.Publish(Event{Type: EventTypeArchivePublished, Source: "publisher"})
	assert.Equal(t, "publisher", receive(t, got).Source)
}

func TestServiceStatus_Lifecycle(t *testing.T) {
	status := NewServiceStatus("janitor")
	assert.Equal(t, StatusStopped, status.GetStatus())
	assert.Zero(t, status.GetUptime())

	status.SetStatus(StatusRunning)
	assert.True(t, status.IsRunning())
	assert.False(t, status.StartedAt.IsZero())

	status.SetError(errors.New("disk gone"))
	assert.Equal(t, StatusError, status.GetStatus())

	report := status.Report()
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, "disk gone", report.Error)
}

func TestManager_StartAndStatuses(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	ok := &mockService{name: "ok"}
	bad := &mockService{name: "bad", startErr: errors.New("boom")}
	mgr.Register(ok)
	mgr.Register(bad)

	assert.Equal(t, 2, mgr.GetServiceCount())
	assert.NotNil(t, ok.eventBus, "event bus should be injected on register")

	err := mgr.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")

	// Start returns only after every service has settled
	assert.True(t, mgr.GetServiceStatus("ok").IsRunning())
	assert.Equal(t, StatusError, mgr.GetServiceStatus("bad").GetStatus())

	statuses := mgr.GetAllStatuses()
	assert.Len(t, statuses, 2)
}

func TestManager_ShutdownSkipsFailedServices(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	var stopped []string
	var mu sync.Mutex
	mgr.Register(&mockService{name: "ok", stopped: &stopped, mu: &mu})
	mgr.Register(&mockService{name: "bad", startErr: errors.New("boom"), stopped: &stopped, mu: &mu})

	require.Error(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Shutdown(context.Background()))

	assert.Equal(t, []string{"ok"}, stopped)
	assert.Equal(t, StatusError, mgr.GetServiceStatus("bad").GetStatus())
}

func TestManager_StartPublishesServiceEvents(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	started := mgr.GetEventBus().Subscribe(EventTypeServiceStarted)
	mgr.Register(&mockService{name: "ok"})

	require.NoError(t, mgr.Start(context.Background()))

	ev := receive(t, started)
	assert.Equal(t, "ok", ev.Data["service"])
}

func TestManager_ShutdownReverseOrder(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	var stopped []string
	var mu sync.Mutex
	for _, name := range []string{"first", "second", "third"} {
		mgr.Register(&mockService{name: name, stopped: &stopped, mu: &mu})
	}

	require.NoError(t, mgr.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"third", "second", "first"}, stopped)
	assert.Equal(t, StatusStopped, mgr.GetServiceStatus("first").GetStatus())
}

func TestManager_ShutdownRecordsStopError(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	mgr.Register(&mockService{name: "flaky", stopErr: errors.New("stuck")})

	require.NoError(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Shutdown(context.Background()))

	assert.Equal(t, StatusError, mgr.GetServiceStatus("flaky").GetStatus())
}

func TestServiceBase_PublishEvent(t *testing.T) {
	base := NewServiceBase("publisher", logger.NewNopLogger())
	base.PublishEvent(EventTypeArchivePublished, nil) // no bus yet, must not panic

	bus := NewEventBus(10)
	base.SetEventBus(bus)
	ch := bus.Subscribe(EventTypeArchivePublished)

	base.PublishEvent(EventTypeArchivePublished, map[string]interface{}{"key": "a/b.zip"})
	ev := receive(t, ch)
	assert.Equal(t, "publisher", ev.Source)
	assert.Equal(t, "a/b.zip", ev.Data["key"])
	assert.Same(t, bus, base.GetEventBus())
	assert.Equal(t, "publisher", base.Name())
}
