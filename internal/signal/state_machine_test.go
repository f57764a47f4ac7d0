package signal

import (
	"testing"

	"main/internal/schema"
)

func TestTransitionGraph(t *testing.T) {
	legal := []struct{ from, to schema.Status }{
		{StatusNone, schema.StatusScheduled},
		{StatusNone, schema.StatusOpened},
		{schema.StatusScheduled, schema.StatusOpened},
		{schema.StatusScheduled, schema.StatusCancelled},
		{schema.StatusOpened, schema.StatusActive},
		{schema.StatusActive, schema.StatusClosed},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %q -> %q to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to schema.Status }{
		{schema.StatusClosed, schema.StatusActive},
		{schema.StatusClosed, schema.StatusScheduled},
		{schema.StatusCancelled, schema.StatusOpened},
		{schema.StatusActive, schema.StatusScheduled},
		{schema.StatusOpened, schema.StatusClosed},
		{StatusNone, schema.StatusActive},
		{StatusNone, schema.StatusClosed},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %q -> %q to be illegal", tc.from, tc.to)
		}
	}
}

func TestTransitionMutatesOnlyWhenLegal(t *testing.T) {
	sig := &schema.Signal{Status: schema.StatusClosed}
	if err := Transition(sig, schema.StatusActive); err == nil {
		t.Fatal("expected error for closed -> active")
	}
	if sig.Status != schema.StatusClosed {
		t.Fatalf("status mutated on illegal transition: %q", sig.Status)
	}

	sig = &schema.Signal{Status: schema.StatusScheduled}
	if err := Transition(sig, schema.StatusOpened); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if sig.Status != schema.StatusOpened {
		t.Fatalf("status not updated: %q", sig.Status)
	}
}
