package multiplex

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/event"
	"github.com/colinmarc/eventrader/source"
)

func bar(pair string, seconds int) event.Bar {
	return event.Bar{
		Pair:      pair,
		Period:    time.Minute,
		Open:      decimal.Zero, High: decimal.Zero, Low: decimal.Zero, Close: decimal.Zero, Volume: decimal.Zero,
		CloseTime: time.Date(2024, 1, 1, 0, 0, seconds, 0, time.UTC),
	}
}

func newSource(events ...event.Event) source.EventSource {
	return source.NewSliceSource(events...)
}

func TestPeekReportsExhaustedWithNoSources(t *testing.T) {
	m := New()
	status, _ := m.Peek()
	if status != Exhausted {
		t.Errorf("expected Exhausted with no sources, got %v", status)
	}
}

func TestPeekReportsReadyAndEarliestInstant(t *testing.T) {
	m := New()
	m.Add(newSource(bar("A", 5)))
	m.Add(newSource(bar("B", 2)))

	status, when := m.Peek()
	if status != Ready {
		t.Errorf("expected Ready, got %v", status)
	}
	if !when.Equal(bar("B", 2).CloseTime) {
		t.Errorf("expected earliest instant from source B, got %v", when)
	}
}

func TestPopSelectsEarliestAcrossSources(t *testing.T) {
	m := New()
	m.Add(newSource(bar("A", 5)))
	m.Add(newSource(bar("B", 2)))

	ev, ok := m.Pop()
	if !ok {
		t.Fatal("expected Pop to succeed")
	}
	got := ev.(event.Bar)
	if got.Pair != "B" {
		t.Errorf("expected earliest event from source B, got %s", got.Pair)
	}
}

func TestPopBreaksTiesByRegistrationOrder(t *testing.T) {
	m := New()
	m.Add(newSource(bar("first", 1)))
	m.Add(newSource(bar("second", 1)))

	ev, _ := m.Pop()
	if ev.(event.Bar).Pair != "first" {
		t.Errorf("expected tie broken in favor of first-registered source, got %s", ev.(event.Bar).Pair)
	}
}

func TestPopDrainsEntireStreamInOrder(t *testing.T) {
	m := New()
	m.Add(newSource(bar("A", 1), bar("A", 3)))
	m.Add(newSource(bar("B", 2)))

	var order []string
	for {
		status, _ := m.Peek()
		if status != Ready {
			break
		}
		ev, ok := m.Pop()
		if !ok {
			break
		}
		order = append(order, ev.(event.Bar).Pair)
	}

	want := []string{"A", "B", "A"}
	if len(order) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected order %v, got %v", want, order)
		}
	}
}

func TestPeekReportsExhaustedOnceEveryTerminatedSourceIsDrained(t *testing.T) {
	m := New()
	m.Add(newSource(bar("A", 1)))
	_, _ = m.Pop()

	status, _ := m.Peek()
	if status != Exhausted {
		t.Errorf("expected Exhausted after draining the only source, got %v", status)
	}
}

func TestSourcesReturnsInRegistrationOrder(t *testing.T) {
	m := New()
	a := newSource(bar("A", 1))
	b := newSource(bar("B", 2))
	m.Add(a)
	m.Add(b)

	got := m.Sources()
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Error("expected Sources() to preserve registration order")
	}
}
