package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/mensfeld/fwmon/internal/event"
)

const placeholder = "🏳"

func newEvent(i int) event.FirewallEvent {
	return event.FirewallEvent{
		ID:            uuid.New(),
		SourceAddress: fmt.Sprintf("203.0.113.%d", i),
		Protocol:      "TCP",
		DestPort:      "22",
	}
}

func TestAppendRoundTrip(t *testing.T) {
	s := New(10, placeholder)
	var appended []event.FirewallEvent
	for i := 0; i < 7; i++ {
		ev := newEvent(i)
		appended = append(appended, ev)
		s.Append(ev)
	}

	if s.Count() != 7 {
		t.Fatalf("Count() = %d, want 7", s.Count())
	}

	recent := s.Recent(7)
	if len(recent) != 7 {
		t.Fatalf("Recent(7) returned %d records", len(recent))
	}
	for i, rec := range recent {
		want := appended[len(appended)-1-i]
		if rec.Event.ID != want.ID {
			t.Errorf("Recent[%d] = %s, want %s (newest first)", i, rec.Event.SourceAddress, want.SourceAddress)
		}
		if rec.Indicator != placeholder {
			t.Errorf("Recent[%d] indicator = %q, want placeholder", i, rec.Indicator)
		}
	}
}

func TestAppendEvictsExactlyOldest(t *testing.T) {
	s := New(5, placeholder)
	var appended []event.FirewallEvent
	for i := 0; i < 6; i++ {
		ev := newEvent(i)
		appended = append(appended, ev)
		s.Append(ev)
	}

	if s.Count() != 5 {
		t.Fatalf("Count() = %d, want 5", s.Count())
	}
	if _, ok := s.Get(appended[0].ID); ok {
		t.Error("Oldest event should have been evicted")
	}
	for _, ev := range appended[1:] {
		if _, ok := s.Get(ev.ID); !ok {
			t.Errorf("Event %s should still be stored", ev.SourceAddress)
		}
	}
	if got := s.Recent(1)[0].Event.ID; got != appended[5].ID {
		t.Error("Newest event should be first")
	}
}

func TestRecentBounds(t *testing.T) {
	s := New(10, placeholder)
	for i := 0; i < 3; i++ {
		s.Append(newEvent(i))
	}

	if got := len(s.Recent(2)); got != 2 {
		t.Errorf("Recent(2) returned %d", got)
	}
	if got := len(s.Recent(100)); got != 3 {
		t.Errorf("Recent(100) returned %d, want 3", got)
	}
	if got := len(s.Recent(0)); got != 3 {
		t.Errorf("Recent(0) returned %d, want all 3", got)
	}
	if got := len(New(10, placeholder).Recent(5)); got != 0 {
		t.Errorf("Recent on empty store returned %d", got)
	}
}

func TestSetIndicatorTransitionsOnce(t *testing.T) {
	s := New(10, placeholder)
	ev := newEvent(1)
	s.Append(ev)

	if !s.SetIndicator(ev.ID, "🇺🇸") {
		t.Fatal("First resolution should apply")
	}
	if s.SetIndicator(ev.ID, "🇩🇪") {
		t.Error("Indicator must not change after it was resolved")
	}
	rec, _ := s.Get(ev.ID)
	if rec.Indicator != "🇺🇸" {
		t.Errorf("Indicator = %q, want 🇺🇸", rec.Indicator)
	}
	if rec.Event != ev {
		t.Error("Event fields must not change when the indicator is set")
	}
}

func TestSetIndicatorAfterEvictionOrClear(t *testing.T) {
	s := New(1, placeholder)
	first := newEvent(1)
	s.Append(first)
	s.Append(newEvent(2))

	if s.SetIndicator(first.ID, "🇺🇸") {
		t.Error("Late result for an evicted event must be a no-op")
	}

	second := s.Recent(1)[0].Event
	s.Clear()
	if s.SetIndicator(second.ID, "🇺🇸") {
		t.Error("Late result after Clear must be a no-op")
	}
	if s.Count() != 0 {
		t.Errorf("Count() after Clear = %d", s.Count())
	}
}

func TestSetIndicatorIgnoresPlaceholder(t *testing.T) {
	s := New(5, placeholder)
	ev := newEvent(1)
	s.Append(ev)

	if s.SetIndicator(ev.ID, placeholder) {
		t.Error("Setting the placeholder is not a transition")
	}
}

func TestResize(t *testing.T) {
	s := New(10, placeholder)
	for i := 0; i < 8; i++ {
		s.Append(newEvent(i))
	}
	newest := s.Recent(1)[0].Event.ID

	s.Resize(3)
	if s.Count() != 3 || s.Capacity() != 3 {
		t.Fatalf("After Resize(3): count %d capacity %d", s.Count(), s.Capacity())
	}
	if s.Recent(1)[0].Event.ID != newest {
		t.Error("Resize must keep the newest events")
	}
}

func TestConcurrentReaders(t *testing.T) {
	s := New(50, placeholder)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Append(newEvent(i % 250))
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if n := len(s.Recent(10)); n > 10 {
					t.Errorf("Recent(10) returned %d", n)
				}
				_ = s.Count()
			}
		}()
	}
	wg.Wait()

	if s.Count() != 50 {
		t.Errorf("Count() = %d, want 50", s.Count())
	}
}
