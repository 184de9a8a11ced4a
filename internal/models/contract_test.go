package models

import (
	"errors"
	"testing"
	"time"
)

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := ParseDate(raw)
	if err != nil {
		t.Fatalf("parse date %q: %v", raw, err)
	}
	return d
}

func datePtr(t *testing.T, raw string) *time.Time {
	d := mustDate(t, raw)
	return &d
}

func TestIntervalOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a    Interval
		b    Interval
		want bool
	}{
		{
			name: "adjacent half-open intervals do not overlap",
			a:    Interval{Start: mustDate(t, "2025-01-01"), End: datePtr(t, "2025-06-30")},
			b:    Interval{Start: mustDate(t, "2025-06-30"), End: datePtr(t, "2025-12-31")},
			want: false,
		},
		{
			name: "start after previous end",
			a:    Interval{Start: mustDate(t, "2025-01-01"), End: datePtr(t, "2025-06-30")},
			b:    Interval{Start: mustDate(t, "2025-07-01")},
			want: false,
		},
		{
			name: "partial overlap",
			a:    Interval{Start: mustDate(t, "2025-01-01"), End: datePtr(t, "2025-06-30")},
			b:    Interval{Start: mustDate(t, "2025-03-01"), End: datePtr(t, "2025-09-01")},
			want: true,
		},
		{
			name: "containment",
			a:    Interval{Start: mustDate(t, "2025-01-01"), End: datePtr(t, "2025-12-31")},
			b:    Interval{Start: mustDate(t, "2025-03-01"), End: datePtr(t, "2025-04-01")},
			want: true,
		},
		{
			name: "open-ended existing blocks later start",
			a:    Interval{Start: mustDate(t, "2025-01-01")},
			b:    Interval{Start: mustDate(t, "2030-01-01"), End: datePtr(t, "2030-02-01")},
			want: true,
		},
		{
			name: "open-ended new after bounded existing",
			a:    Interval{Start: mustDate(t, "2025-01-01"), End: datePtr(t, "2025-02-01")},
			b:    Interval{Start: mustDate(t, "2024-01-01"), End: datePtr(t, "2025-01-01")},
			want: false,
		},
		{
			name: "both open-ended",
			a:    Interval{Start: mustDate(t, "2025-01-01")},
			b:    Interval{Start: mustDate(t, "2020-01-01")},
			want: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("a.Overlaps(b) = %v, want %v", got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Fatalf("b.Overlaps(a) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIntervalValidate(t *testing.T) {
	if err := (Interval{Start: mustDate(t, "2025-01-01"), End: datePtr(t, "2025-01-01")}).Validate(); !errors.Is(err, ErrEmptyInterval) {
		t.Fatalf("expected empty interval error, got %v", err)
	}
	if err := (Interval{Start: mustDate(t, "2025-02-01"), End: datePtr(t, "2025-01-01")}).Validate(); !errors.Is(err, ErrEmptyInterval) {
		t.Fatalf("expected inverted interval error, got %v", err)
	}
	if err := (Interval{}).Validate(); err == nil {
		t.Fatal("expected missing start error")
	}
	if err := (Interval{Start: mustDate(t, "2025-01-01")}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-07-01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if FormatDate(d) != "2025-07-01" {
		t.Fatalf("unexpected round trip %q", FormatDate(d))
	}
	if _, err := ParseDate("07/01/2025"); err == nil {
		t.Fatal("expected format error")
	}
	end, err := ParseOptionalDate("  ")
	if err != nil || end != nil {
		t.Fatalf("expected nil end date, got %v (%v)", end, err)
	}
}
