package timeutil

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    Clock
		wantErr bool
	}{
		{"09:00", Clock{Hour: 9}, false},
		{"9:30", Clock{Hour: 9, Minute: 30}, false},
		{"23:59", Clock{Hour: 23, Minute: 59}, false},
		{"00:00", Clock{}, false},
		{"24:00", Clock{}, true},
		{"12:60", Clock{}, true},
		{"1200", Clock{}, true},
		{"ab:cd", Clock{}, true},
		{"", Clock{}, true},
		{"12:5", Clock{}, true},
	}

	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q) should error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	if err != nil || loc != time.UTC {
		t.Fatalf("empty name = %v, %v; want UTC", loc, err)
	}

	rome, err := LoadLocation("Europe/Rome")
	if err != nil {
		t.Fatalf("load Europe/Rome: %v", err)
	}
	again, _ := LoadLocation("Europe/Rome")
	if rome != again {
		t.Error("expected cached location to be reused")
	}

	if _, err := LoadLocation("Mars/Olympus_Mons"); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestSameLocalDay(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	// 03:00 UTC on Feb 5 is still Feb 4 in New York.
	a := time.Date(2026, 2, 5, 3, 0, 0, 0, time.UTC)
	b := time.Date(2026, 2, 4, 12, 0, 0, 0, ny)

	if !SameLocalDay(a, b, ny) {
		t.Error("expected same day in New York")
	}
	if SameLocalDay(a, b, time.UTC) {
		t.Error("expected different days in UTC")
	}
}

func TestClockOnAppliesToCalendarDay(t *testing.T) {
	day := time.Date(2026, 3, 10, 22, 15, 0, 0, time.UTC)
	got := Clock{Hour: 7, Minute: 30}.On(day)
	want := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("On = %v, want %v", got, want)
	}
}

func TestParseFlexible(t *testing.T) {
	got, err := ParseFlexible("2026-02-05", time.UTC)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if !got.Equal(time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}

	got, err = ParseFlexible("2026-02-05T10:30:00Z", time.UTC)
	if err != nil {
		t.Fatalf("parse rfc3339: %v", err)
	}
	if got.Hour() != 10 || got.Minute() != 30 {
		t.Errorf("got %v", got)
	}

	if _, err := ParseFlexible("next tuesday", time.UTC); err == nil {
		t.Error("expected error for free text")
	}
}

func TestDaysInMonth(t *testing.T) {
	if got := DaysInMonth(2026, time.February); got != 28 {
		t.Errorf("Feb 2026 = %d, want 28", got)
	}
	if got := DaysInMonth(2028, time.February); got != 29 {
		t.Errorf("Feb 2028 = %d, want 29", got)
	}
	if got := DaysInMonth(2026, time.April); got != 30 {
		t.Errorf("Apr 2026 = %d, want 30", got)
	}
}

func TestRelative(t *testing.T) {
	now := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	if got := Relative(now.Add(3*time.Hour), now); got != "3 hours from now" {
		t.Errorf("future = %q", got)
	}
	if got := Relative(now.Add(-2*time.Hour), now); got != "2 hours ago" {
		t.Errorf("past = %q", got)
	}
}
