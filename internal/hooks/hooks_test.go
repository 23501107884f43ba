package hooks

import (
	"io"
	"log/slog"
	"testing"
)

func quietBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublish_CallsHandlersInOrder(t *testing.T) {
	bus := quietBus()
	a, b := NewOwner(), NewOwner()
	var got []string
	bus.On(NewTag, a, func(p any) { got = append(got, "a:"+p.(string)) })
	bus.On(NewTag, b, func(p any) { got = append(got, "b:"+p.(string)) })

	bus.Publish(NewTag, "maintag:Slashdot")

	if len(got) != 2 || got[0] != "a:maintag:Slashdot" || got[1] != "b:maintag:Slashdot" {
		t.Fatalf("unexpected handler calls: %v", got)
	}
}

func TestUnhookAll_RemovesOnlyOwner(t *testing.T) {
	bus := quietBus()
	a, b := NewOwner(), NewOwner()
	calls := map[string]int{}
	bus.On(NewTag, a, func(any) { calls["a"]++ })
	bus.On(DelTag, a, func(any) { calls["a"]++ })
	bus.On(NewTag, b, func(any) { calls["b"]++ })

	bus.UnhookAll(a)
	bus.Publish(NewTag, nil)
	bus.Publish(DelTag, nil)

	if calls["a"] != 0 || calls["b"] != 1 {
		t.Fatalf("unexpected calls after unhook: %v", calls)
	}
	if bus.Count(DelTag) != 0 {
		t.Fatalf("expected del_tag subscriptions to be gone, got %d", bus.Count(DelTag))
	}
}

func TestUnhook_SingleEvent(t *testing.T) {
	bus := quietBus()
	a := NewOwner()
	n := 0
	bus.On(NewTag, a, func(any) { n++ })
	bus.On(DelTag, a, func(any) { n += 10 })

	bus.Unhook(NewTag, a)
	bus.Publish(NewTag, nil)
	bus.Publish(DelTag, nil)

	if n != 10 {
		t.Fatalf("expected only del_tag handler to run, got %d", n)
	}
}

func TestPublish_RecoversFromPanics(t *testing.T) {
	bus := quietBus()
	ran := false
	bus.On(Attributes, NewOwner(), func(any) { panic("boom") })
	bus.On(Attributes, NewOwner(), func(any) { ran = true })

	bus.Publish(Attributes, nil)

	if !ran {
		t.Fatal("expected second handler to run after first panicked")
	}
}

func TestPublish_HandlerMayUnhookDuringDelivery(t *testing.T) {
	bus := quietBus()
	a := NewOwner()
	n := 0
	bus.On(OptChange, a, func(any) {
		n++
		bus.UnhookAll(a)
	})

	bus.Publish(OptChange, nil)
	bus.Publish(OptChange, nil)

	if n != 1 {
		t.Fatalf("expected handler to run once, got %d", n)
	}
}
