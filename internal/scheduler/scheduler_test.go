package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "asanagram/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		kind SpecKind
		cron string
	}{
		{in: "0 9 * * *", kind: SpecCron, cron: "0 9 * * *"},
		{in: "cron:@daily", kind: SpecCron, cron: "@daily"},
		{in: "@every 1h", kind: SpecCron, cron: "@every 1h"},
		{in: "09:00", kind: SpecDaily, cron: "0 9 * * *"},
		{in: "18:30", kind: SpecDaily, cron: "30 18 * * *"},
		{in: "55m", kind: SpecInterval, cron: "@every 55m0s"},
		{in: "every:2h30m", kind: SpecInterval, cron: "@every 2h30m0s"},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.in)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
		}
		if got.Kind != tt.kind || got.CronSpec() != tt.cron {
			t.Fatalf("ParseSchedule(%q) = %+v (%q), want kind %v %q", tt.in, got, got.CronSpec(), tt.kind, tt.cron)
		}
	}

	for _, bad := range []string{"", "25:00", "soon", "every:0s", "cron:"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Fatalf("ParseSchedule(%q) succeeded", bad)
		}
	}
}

func noop(context.Context) error { return nil }

func TestSetIsAtomic(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.Set([]Job{{Name: "overdue", Schedule: "0 9 * * *", Run: noop}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err := s.Set([]Job{
		{Name: "deadlines", Schedule: "0 10 * * *", Run: noop},
		{Name: "weekly", Schedule: "61 10 * * 0", Run: noop},
	})
	if err == nil {
		t.Fatal("Set accepted an invalid cron spec")
	}
	if got := s.Entries(); len(got) != 1 || got[0].Name != "overdue" {
		t.Fatalf("entries after failed Set = %+v", got)
	}
}

func TestNextRunUsesTimezone(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "Europe/Moscow"}, logx.Nop())
	if err := s.Set([]Job{{Name: "weekly", Schedule: "0 10 * * 0", Run: noop}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Friday 2026-01-02 12:00 UTC.
	next, ok := s.NextRun("weekly", time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatal("weekly not registered")
	}
	want := time.Date(2026, 1, 4, 7, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next.UTC(), want)
	}
	if next.Location().String() != "Europe/Moscow" {
		t.Fatalf("location = %v", next.Location())
	}
}

func TestRunNow(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	boom := errors.New("boom")
	ran := false
	_ = s.Set([]Job{{Name: "overdue", Schedule: "09:00", Run: func(ctx context.Context) error {
		ran = true
		if _, ok := ctx.Deadline(); !ok {
			t.Error("run context has no deadline")
		}
		return boom
	}}})
	if err := s.RunNow(context.Background(), "overdue"); !errors.Is(err, boom) || !ran {
		t.Fatalf("RunNow = %v, ran=%v", err, ran)
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("RunNow(missing) = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	_ = s.Set([]Job{{Name: "tick", Schedule: "1h", Run: noop}})
	s.Start(context.Background())
	entries := s.Entries()
	if len(entries) != 1 || entries[0].Next.IsZero() {
		t.Fatalf("entries = %+v", entries)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
