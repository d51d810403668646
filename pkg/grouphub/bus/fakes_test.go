package bus_test

import (
	"context"
	"sync"

	"github.com/randalmurphal/grouphub/pkg/grouphub/bus"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/listener"
)

// callLog records listener calls across listeners in order.
type callLog struct {
	mu     sync.Mutex
	calls  []string
	events []*event.Event
}

func (c *callLog) add(call string, evt *event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	c.events = append(c.events, evt)
}

func (c *callLog) snapshot() ([]string, []*event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...), append([]*event.Event(nil), c.events...)
}

// fakeListener is a scriptable listener.
type fakeListener struct {
	name string
	log  *callLog

	subscribers []listener.Subscriber
	getErr      error
	publishErrs []error // consumed one per publish call
	getPanic    any
	publishHang chan struct{}

	mu       sync.Mutex
	groupID  string
	publishN int
}

func (f *fakeListener) Name() string { return f.name }

func (f *fakeListener) GetSubscribers(_ context.Context, evt *event.Event) ([]listener.Subscriber, error) {
	f.log.add(f.name+".get", evt)
	if f.getPanic != nil {
		panic(f.getPanic)
	}
	return f.subscribers, f.getErr
}

func (f *fakeListener) PublishToSubscribers(_ context.Context, evt *event.Event, _ []listener.Subscriber) error {
	f.log.add(f.name+".publish", evt)
	if f.publishHang != nil {
		<-f.publishHang
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishN++
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		return err
	}
	return nil
}

func (f *fakeListener) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishN
}

func one() []listener.Subscriber {
	return []listener.Subscriber{{ID: "s1", Name: "sub", Target: "https://example.com"}}
}

// newTestBus wires webhook and notification fakes sharing one call log.
func newTestBus(webhook, notification *fakeListener, opts ...bus.Option) *bus.Service {
	factory := func(l *fakeListener) bus.ListenerFactory {
		return func(groupID string) listener.Listener {
			l.mu.Lock()
			l.groupID = groupID
			l.mu.Unlock()
			return l
		}
	}
	all := append([]bus.Option{bus.WithListeners(factory(webhook), factory(notification))}, opts...)
	return bus.New(all...)
}
