// README: Time-of-day model; wall-clock strings become minutes since midnight at the boundary.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// ToMinutes converts "HH:MM", "YYYY-MM-DD HH:MM" or "YYYY-MM-DDTHH:MM[:SS]" into
// minutes since midnight. Unparseable input yields 0.
func ToMinutes(text string) int {
	m, _ := ParseClock(text)
	return m
}

// ParseClock is ToMinutes with an explicit ok: false when no HH:MM clock can
// be read from text.
func ParseClock(text string) (int, bool) {
	clock := clockPart(text)
	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(leadingDigits(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// SplitSlot reads a requested visit time as its day and minute of day. date is
// "" for a bare clock time. ok is false when the clock is unreadable or a date
// prefix is present but is not YYYY-MM-DD.
func SplitSlot(text string) (date string, minute int, ok bool) {
	text = strings.TrimSpace(text)
	minute, ok = ParseClock(text)
	if !ok {
		return "", 0, false
	}
	if i := strings.IndexAny(text, " T"); i >= 0 {
		if _, err := time.Parse(time.DateOnly, text[:i]); err != nil {
			return "", 0, false
		}
		date = text[:i]
	}
	return date, minute, true
}

// Today is the scheduling day now falls on, in now's location.
func Today(now time.Time) string {
	return now.Format(time.DateOnly)
}

// DateOf returns the YYYY-MM-DD portion of a datetime string, or "" for a bare clock time.
func DateOf(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexAny(text, " T")
	if i < 0 {
		return ""
	}
	if _, err := time.Parse(time.DateOnly, text[:i]); err != nil {
		return ""
	}
	return text[:i]
}

// FormatMinutes renders minutes since midnight as HH:MM.
func FormatMinutes(m int) string {
	if m < 0 {
		m = 0
	}
	m %= minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps uses half-open intervals: ranges that only touch at an endpoint do not overlap.
func Overlaps(startA, endA, startB, endB int) bool {
	return startA < endB && endA > startB
}

func clockPart(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.LastIndexAny(text, " T"); i >= 0 {
		return text[i+1:]
	}
	return text
}

func leadingDigits(s string) string {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return s[:n]
}
