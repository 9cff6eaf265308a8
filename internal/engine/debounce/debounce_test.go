package debounce

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"asanagram/internal/clock"
)

type snap struct{ Name string }

type fired struct {
	ID    string
	Kinds []string
	Actor string
	Snap  string
}

func newAgg(t *testing.T) (*Aggregator[string, snap], *clock.Fake, *[]fired) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	a := New[string, snap](clk, func(s string) bool { return s == "" })
	var out []fired
	return a, clk, &out
}

func recorder(out *[]fired) FireFunc[string, snap] {
	return func(id string, kinds []string, actor string, s *snap) {
		f := fired{ID: id, Kinds: kinds, Actor: actor}
		if s != nil {
			f.Snap = s.Name
		}
		*out = append(*out, f)
	}
}

func TestBurstFiresOnceWithUnion(t *testing.T) {
	t.Parallel()
	a, clk, out := newAgg(t)
	on := recorder(out)

	a.Schedule("T1", "name", "Anna", 30*time.Second, nil, on)
	clk.Advance(10 * time.Second)
	a.Schedule("T1", "assignee", "", 30*time.Second, nil, on)
	clk.Advance(10 * time.Second)
	a.Schedule("T1", "due_on", "Boris", 30*time.Second, &snap{Name: "Ship"}, on)

	clk.Advance(29 * time.Second)
	if len(*out) != 0 {
		t.Fatalf("fired before quiet window elapsed: %+v", *out)
	}
	clk.Advance(time.Second)

	want := []fired{{ID: "T1", Kinds: []string{"assignee", "due_on", "name"}, Actor: "Boris", Snap: "Ship"}}
	if diff := cmp.Diff(want, *out); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
	if a.Pending() != 0 {
		t.Fatalf("Pending = %d after fire", a.Pending())
	}
	clk.Advance(time.Hour)
	if len(*out) != 1 {
		t.Fatalf("stale timer fired again: %d", len(*out))
	}
}

func TestEmptyActorKeepsPrevious(t *testing.T) {
	t.Parallel()
	a, clk, out := newAgg(t)
	on := recorder(out)
	a.Schedule("T1", "name", "Anna", time.Second, nil, on)
	a.Schedule("T1", "notes", "", time.Second, nil, on)
	clk.Advance(time.Second)
	if got := (*out)[0].Actor; got != "Anna" {
		t.Fatalf("actor = %q, want Anna", got)
	}
}

func TestLongestWindowWins(t *testing.T) {
	t.Parallel()
	a, clk, out := newAgg(t)
	on := recorder(out)
	a.Schedule("T1", "added", "Anna", 3*time.Second, nil, on)
	a.Schedule("T1", "name", "Anna", 30*time.Second, nil, on)
	a.Schedule("T1", "assignee", "Anna", 3*time.Second, nil, on)

	clk.Advance(3 * time.Second)
	if len(*out) != 0 {
		t.Fatal("short window applied after a longer one was requested")
	}
	clk.Advance(27 * time.Second)
	if len(*out) != 1 {
		t.Fatalf("fires = %d, want 1", len(*out))
	}
}

func TestNewEntityUsesShortWindow(t *testing.T) {
	t.Parallel()
	a, clk, out := newAgg(t)
	a.Schedule("T9", "added", "Anna", 3*time.Second, nil, recorder(out))
	if d, ok := a.Deadline("T9"); !ok || !d.Equal(clk.Now().Add(3*time.Second)) {
		t.Fatalf("Deadline = %v, %v", d, ok)
	}
	clk.Advance(3 * time.Second)
	if len(*out) != 1 {
		t.Fatalf("fires = %d, want 1", len(*out))
	}
}

func TestDiscardPreventsFire(t *testing.T) {
	t.Parallel()
	a, clk, out := newAgg(t)
	a.Schedule("T1", "name", "Anna", 30*time.Second, nil, recorder(out))
	if !a.Discard("T1") {
		t.Fatal("Discard reported no pending aggregate")
	}
	if a.Discard("T1") {
		t.Fatal("second Discard reported a pending aggregate")
	}
	clk.Advance(time.Minute)
	if len(*out) != 0 {
		t.Fatalf("discarded aggregate fired: %+v", *out)
	}
}

func TestEntitiesAreIndependent(t *testing.T) {
	t.Parallel()
	a, clk, out := newAgg(t)
	on := recorder(out)
	a.Schedule("A", "name", "x", 5*time.Second, nil, on)
	a.Schedule("B", "name", "y", 10*time.Second, nil, on)
	clk.Advance(5 * time.Second)
	if len(*out) != 1 || (*out)[0].ID != "A" {
		t.Fatalf("unexpected fires: %+v", *out)
	}
	clk.Advance(5 * time.Second)
	if len(*out) != 2 || (*out)[1].ID != "B" {
		t.Fatalf("unexpected fires: %+v", *out)
	}
}

func TestStopDropsEverything(t *testing.T) {
	t.Parallel()
	a, clk, out := newAgg(t)
	on := recorder(out)
	a.Schedule("A", "name", "x", time.Second, nil, on)
	a.Schedule("B", "name", "y", time.Second, nil, on)
	if n := a.Stop(); n != 2 {
		t.Fatalf("Stop dropped %d, want 2", n)
	}
	a.Schedule("C", "name", "z", time.Second, nil, on)
	clk.Advance(time.Minute)
	if len(*out) != 0 || a.Pending() != 0 {
		t.Fatalf("fires after Stop: %+v pending=%d", *out, a.Pending())
	}
}
