package benchmarks

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/randalmurphal/grouphub/pkg/grouphub/bus"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/listener"
	"github.com/randalmurphal/grouphub/pkg/grouphub/notify"
	"github.com/randalmurphal/grouphub/pkg/grouphub/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// staticListener returns a fixed subscriber list and discards deliveries.
type staticListener struct {
	name string
	subs []listener.Subscriber
}

func (l staticListener) Name() string { return l.name }

func (l staticListener) GetSubscribers(context.Context, *event.Event) ([]listener.Subscriber, error) {
	return l.subs, nil
}

func (l staticListener) PublishToSubscribers(context.Context, *event.Event, []listener.Subscriber) error {
	return nil
}

func subscribers(n int) []listener.Subscriber {
	subs := make([]listener.Subscriber, n)
	for i := range subs {
		subs[i] = listener.Subscriber{ID: nodeID(i), Target: "https://example.com/" + nodeID(i)}
	}
	return subs
}

func nodeID(n int) string {
	return string(rune('a'+n%26)) + string(rune('0'+n%10))
}

func staticBus(n int, opts ...bus.Option) *bus.Service {
	factory := func(name string) bus.ListenerFactory {
		return func(string) listener.Listener {
			return staticListener{name: name, subs: subscribers(n)}
		}
	}
	base := []bus.Option{
		bus.WithListeners(factory(listener.NameWebhook), factory(listener.NameNotification)),
		bus.WithLogger(quiet),
	}
	return bus.New(append(base, opts...)...)
}

// BenchmarkDispatch_Immediate_1 measures inline fan-out to one subscriber per listener.
func BenchmarkDispatch_Immediate_1(b *testing.B) {
	svc := staticBus(1)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = svc.Dispatch(ctx, "bench", "g1", event.TypeTestMessage, nil, "hi")
	}
}

// BenchmarkDispatch_Immediate_50 measures inline fan-out to 50 subscribers per listener.
func BenchmarkDispatch_Immediate_50(b *testing.B) {
	svc := staticBus(50)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = svc.Dispatch(ctx, "bench", "g1", event.TypeTestMessage, nil, "hi")
	}
}

// BenchmarkDispatch_WorkerPool measures enqueue cost with a blocking worker pool.
func BenchmarkDispatch_WorkerPool(b *testing.B) {
	pool := bus.NewWorkerPool(8, 1024, bus.WithBlockingSubmit())
	svc := staticBus(5, bus.WithExecutor(pool))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = svc.Dispatch(ctx, "bench", "g1", event.TypeTestMessage, nil, "hi")
	}
	b.StopTimer()
	_ = pool.Close(ctx)
}

// BenchmarkDispatch_MemoryStore measures the standard listeners reading a
// memory store with ten notifiers.
func BenchmarkDispatch_MemoryStore(b *testing.B) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	defer st.Close()
	for i := 0; i < 10; i++ {
		_, _ = st.CreateNotifier(ctx, store.Notifier{
			GroupID:    "g1",
			AppriseURL: "json://example.com/" + nodeID(i),
			Enabled:    true,
			Options:    map[event.EventType]bool{event.TypeTestMessage: true},
		})
	}
	sink := notify.NotifierFunc(func(context.Context, notify.Notification) error { return nil })
	svc := bus.New(bus.WithStore(st, sink), bus.WithLogger(quiet))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = svc.Dispatch(ctx, "bench", "g1", event.TypeTestMessage, nil, "hi")
	}
}
