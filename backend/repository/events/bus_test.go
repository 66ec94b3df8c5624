package events

import "testing"

func TestBus_PublishSync_CallsTypeAndAllHandlers(t *testing.T) {
	t.Parallel()

	bus := NewBus()

	calls := make(chan EventType, 2)
	bus.Subscribe(EventProfileCreated, func(event Event) {
		calls <- event.Type()
	})
	bus.SubscribeAll(func(event Event) {
		calls <- event.Type()
	})

	bus.PublishSync(ProfileEvent{EventType: EventProfileCreated})

	got1 := <-calls
	got2 := <-calls

	if got1 != EventProfileCreated || got2 != EventProfileCreated {
		t.Fatalf("unexpected calls: %v, %v", got1, got2)
	}
}

func TestBus_Publish_Async(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	done := make(chan Event, 1)
	bus.Subscribe(EventLastStateChanged, func(event Event) {
		done <- event
	})

	bus.Publish(LastStateEvent{})
	if ev := <-done; ev.Type() != EventLastStateChanged {
		t.Fatalf("unexpected event type: %v", ev.Type())
	}
}

func TestBus_HasSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	if bus.HasSubscribers(EventProfileDeleted) {
		t.Fatal("fresh bus should have no subscribers")
	}
	bus.Subscribe(EventProfileDeleted, func(Event) {})
	if !bus.HasSubscribers(EventProfileDeleted) {
		t.Fatal("expected subscriber")
	}
	bus.Clear()
	if bus.HasSubscribers(EventProfileDeleted) {
		t.Fatal("Clear did not remove subscribers")
	}
}

func TestBus_SubscribeAllSeesEveryType(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	seen := make(chan EventType, 3)
	bus.SubscribeAll(func(event Event) {
		seen <- event.Type()
	})

	bus.PublishSync(ProfileEvent{EventType: EventProfileUpdated})
	bus.PublishSync(CurrentEvent{ProfileID: "x"})
	bus.PublishSync(LastStateEvent{})

	want := []EventType{EventProfileUpdated, EventCurrentChanged, EventLastStateChanged}
	for _, w := range want {
		if got := <-seen; got != w {
			t.Fatalf("got %v, want %v", got, w)
		}
	}
}
