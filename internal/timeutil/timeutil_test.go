package timeutil

import (
	"testing"
	"time"
)

func TestMorningTruncatesToLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	now := time.Date(2024, 3, 10, 23, 45, 12, 0, time.UTC)
	got := Morning(now, loc)
	// 23:45 UTC is already the next day in Kolkata (+05:30)
	if got.Year() != 2024 || got.Month() != 3 || got.Day() != 11 {
		t.Fatalf("unexpected day: %v", got)
	}
	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
		t.Fatalf("not midnight: %v", got)
	}
}

func TestMorningSameDayIdempotent(t *testing.T) {
	a := Morning(time.Date(2024, 5, 1, 0, 0, 1, 0, time.UTC), time.UTC)
	b := Morning(time.Date(2024, 5, 1, 23, 59, 59, 0, time.UTC), time.UTC)
	if !a.Equal(b) {
		t.Fatalf("same day should map to same key: %v vs %v", a, b)
	}
	if DayKey(a) != "2024-05-01" {
		t.Fatalf("day key: %s", DayKey(a))
	}
}
