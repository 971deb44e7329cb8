package eventbus

import (
	"testing"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	b := New(nil, 0)

	var got []string
	b.Subscribe(TypeUserInput, func(e Event) { got = append(got, "first") })
	b.Subscribe(TypeUserInput, func(e Event) { got = append(got, "second") })

	b.Publish(UserInput{TurnID: "t1", Content: "hi", Mode: "standard"})

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("handlers ran out of order: %v", got)
	}
}

func TestPublishOnlyInvokesMatchingType(t *testing.T) {
	b := New(nil, 0)

	var userInputCount, contextReadyCount int
	b.Subscribe(TypeUserInput, func(e Event) { userInputCount++ })
	b.Subscribe(TypeContextReady, func(e Event) { contextReadyCount++ })

	b.Publish(UserInput{TurnID: "t1"})

	if userInputCount != 1 {
		t.Errorf("userInputCount = %d, want 1", userInputCount)
	}
	if contextReadyCount != 0 {
		t.Errorf("contextReadyCount = %d, want 0", contextReadyCount)
	}
}

func TestReentrantPublishQueuesInsteadOfRecursing(t *testing.T) {
	b := New(nil, 0)

	var order []string
	b.Subscribe(TypeUserInput, func(e Event) {
		order = append(order, "user_input")
		// Re-entrant publish from within a handler must not interleave
		// ahead of the rest of user_input's own handlers.
		b.Publish(ContextReady{TurnID: "t1"})
	})
	b.Subscribe(TypeUserInput, func(e Event) {
		order = append(order, "user_input_2")
	})
	b.Subscribe(TypeContextReady, func(e Event) {
		order = append(order, "context_ready")
	})

	b.Publish(UserInput{TurnID: "t1"})

	want := []string{"user_input", "user_input_2", "context_ready"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestHandlerPanicDoesNotBreakSubsequentDelivery(t *testing.T) {
	b := New(nil, 0)

	b.Subscribe(TypeUserInput, func(e Event) { panic("boom") })
	var ran bool
	b.Subscribe(TypeUserInput, func(e Event) { ran = true })

	b.Publish(UserInput{TurnID: "t1"})
	if !ran {
		t.Error("second handler did not run after first panicked")
	}

	// Bus must not be stuck "dispatching" after a panic.
	var secondRan bool
	b.Subscribe(TypeContextReady, func(e Event) { secondRan = true })
	b.Publish(ContextReady{TurnID: "t1"})
	if !secondRan {
		t.Error("bus appears stuck dispatching after a handler panic")
	}
}

func TestRecentReturnsMostRecentEventsOldestFirst(t *testing.T) {
	b := New(nil, 3)

	b.Publish(UserInput{TurnID: "1"})
	b.Publish(UserInput{TurnID: "2"})
	b.Publish(UserInput{TurnID: "3"})
	b.Publish(UserInput{TurnID: "4"})

	recent := b.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2", len(recent))
	}
	if recent[0].(UserInput).TurnID != "3" || recent[1].(UserInput).TurnID != "4" {
		t.Errorf("recent = %+v, want turn ids [3 4]", recent)
	}
}

func TestDumpReturnsEverythingHeldUpToCapacity(t *testing.T) {
	b := New(nil, 2)

	b.Publish(UserInput{TurnID: "1"})
	b.Publish(UserInput{TurnID: "2"})
	b.Publish(UserInput{TurnID: "3"})

	dump := b.Dump()
	if len(dump) != 2 {
		t.Fatalf("len(dump) = %d, want 2", len(dump))
	}
	if dump[0].(UserInput).TurnID != "2" || dump[1].(UserInput).TurnID != "3" {
		t.Errorf("dump = %+v, want turn ids [2 3]", dump)
	}
}
