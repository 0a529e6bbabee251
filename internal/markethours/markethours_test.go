package markethours

import (
	"strings"
	"testing"
	"time"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", ist(2026, time.June, 3, 9, 14), false},
		{"at open", ist(2026, time.June, 3, 9, 15), true},
		{"midday", ist(2026, time.June, 3, 12, 0), true},
		{"at close", ist(2026, time.June, 3, 15, 30), false},
		{"saturday", ist(2026, time.June, 6, 11, 0), false},
		{"holiday", ist(2026, time.January, 26, 11, 0), false},
		{"utc input", time.Date(2026, time.June, 3, 4, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range tests {
		if got := IsMarketOpen(tc.at); got != tc.want {
			t.Errorf("%s: IsMarketOpen(%v) = %v, want %v", tc.name, tc.at, got, tc.want)
		}
	}
}

func TestPreviousTradingDay(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"midweek", ist(2026, time.June, 3, 10, 0), ist(2026, time.June, 2, 9, 15)},
		{"monday skips weekend", ist(2026, time.June, 8, 10, 0), ist(2026, time.June, 5, 9, 15)},
		{"after good friday", ist(2026, time.April, 13, 10, 0), ist(2026, time.April, 9, 9, 15)},
	}
	for _, tc := range tests {
		if got := PreviousTradingDay(tc.at); !got.Equal(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNextOpen(t *testing.T) {
	if got := NextOpen(ist(2026, time.June, 3, 8, 0)); !got.Equal(ist(2026, time.June, 3, 9, 15)) {
		t.Errorf("same day: got %v", got)
	}
	if got := NextOpen(ist(2026, time.June, 5, 16, 0)); !got.Equal(ist(2026, time.June, 8, 9, 15)) {
		t.Errorf("friday evening: got %v", got)
	}
}

func TestAddHoliday(t *testing.T) {
	day := ist(2030, time.March, 4, 10, 0)
	if IsHoliday(day) {
		t.Fatal("unexpected holiday")
	}
	if err := ParseHolidays([]string{"2030-03-04"}); err != nil {
		t.Fatal(err)
	}
	if !IsHoliday(day) || IsMarketOpen(day) {
		t.Error("configured holiday not honoured")
	}
	if err := ParseHolidays([]string{"04/03/2030"}); err == nil {
		t.Error("expected parse error")
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusString(ist(2026, time.June, 3, 14, 30)); !strings.HasPrefix(s, "market open") {
		t.Errorf("got %q", s)
	}
	if s := StatusString(ist(2026, time.June, 6, 10, 0)); !strings.Contains(s, "Mon") {
		t.Errorf("got %q", s)
	}
}
