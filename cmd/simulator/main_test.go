package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunAcceleratedPrintsEachTick(t *testing.T) {
	var out bytes.Buffer
	opts := options{
		duration:    5 * time.Millisecond,
		tick:        time.Millisecond,
		accelerated: true,
		delays:      "1:5",
	}
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	text := out.String()
	ticks := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "[") {
			ticks++
			if !strings.Contains(line, "EXP001@T1") {
				t.Fatalf("tick line missing EXP001 on track 1: %q", line)
			}
		}
	}
	if ticks != 5 {
		t.Fatalf("expected 5 tick lines, got %d\n%s", ticks, text)
	}
	if strings.Count(text, "EXP001 delayed by 5 minutes") != 1 {
		t.Fatalf("delay event should print exactly once:\n%s", text)
	}
	if !strings.HasPrefix(text, "Starting simulation: duration=5ms, tick=1ms, mode=accelerated") {
		t.Fatalf("unexpected banner:\n%s", text)
	}
	if !strings.Contains(text, "Simulation complete: 1 events, 0 active conflicts") {
		t.Fatalf("unexpected summary:\n%s", text)
	}
}

func TestRunTemplate(t *testing.T) {
	var out bytes.Buffer
	opts := options{
		duration:    time.Millisecond,
		tick:        time.Millisecond,
		accelerated: true,
		template:    "Track Maintenance Block",
	}
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, `Scenario "Track Maintenance Block"`) {
		t.Fatalf("missing scenario header:\n%s", text)
	}
	if !strings.Contains(text, `"totalDelayChange": 40`) {
		t.Fatalf("expected total delay change of 40:\n%s", text)
	}
}

func TestRunRejectsUnknownTemplate(t *testing.T) {
	err := run(context.Background(), options{duration: time.Millisecond, tick: time.Millisecond, template: "nope"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown scenario template") {
		t.Fatalf("expected unknown template error, got %v", err)
	}
}

func TestParseDelays(t *testing.T) {
	got, err := parseDelays(" 1:5, 3:10 ")
	if err != nil {
		t.Fatalf("parseDelays: %v", err)
	}
	if len(got) != 2 || got[0] != (delay{trainID: 1, minutes: 5}) || got[1] != (delay{trainID: 3, minutes: 10}) {
		t.Fatalf("unexpected delays: %+v", got)
	}
	if got, err := parseDelays(""); err != nil || got != nil {
		t.Fatalf("empty input: got %v, %v", got, err)
	}
	for _, bad := range []string{"1", "x:5", "1:-2", "1:y"} {
		if _, err := parseDelays(bad); err == nil {
			t.Fatalf("parseDelays(%q) should fail", bad)
		}
	}
}
