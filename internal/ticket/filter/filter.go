// Package filter narrows train records by departure time and train type.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/railticket-query/pkg/ticket/models"
)

// TimeWindow bounds departure times in zero-padded HH:MM form. An empty
// bound is open.
type TimeWindow struct {
	Start string
	End   string
}

// NewTimeWindow normalizes both bounds and fails on the first invalid one.
func NewTimeWindow(start, end string) (TimeWindow, error) {
	var w TimeWindow
	var err error
	if w.Start, err = NormalizeClock(start); err != nil {
		return TimeWindow{}, fmt.Errorf("start time: %w", err)
	}
	if w.End, err = NormalizeClock(end); err != nil {
		return TimeWindow{}, fmt.Errorf("end time: %w", err)
	}
	return w, nil
}

// NormalizeClock turns user input such as "8:05" or "08：05" into "08:05".
// Blank input stays blank.
func NormalizeClock(s string) (string, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "：", ":"))
	if s == "" {
		return "", nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return t.Format("15:04"), nil
}

func (w TimeWindow) IsZero() bool {
	return w.Start == "" && w.End == ""
}

// Contains compares lexicographically; valid for fixed-width HH:MM strings.
func (w TimeWindow) Contains(clock string) bool {
	if w.Start != "" && clock < w.Start {
		return false
	}
	if w.End != "" && clock > w.End {
		return false
	}
	return true
}

// Apply keeps records departing inside window whose train code starts with
// one of types (case-insensitive). A nil window or empty types list does not
// filter. Input order is preserved and the input slice is not modified.
func Apply(records []models.TrainRecord, window *TimeWindow, types []string) []models.TrainRecord {
	allowed := typeSet(types)
	out := make([]models.TrainRecord, 0, len(records))
	for _, r := range records {
		if window != nil && !window.Contains(r.FromStation.DepartureTime) {
			continue
		}
		if allowed != nil && !allowed[firstUpper(r.TrainCode)] {
			continue
		}
		out = append(out, r)
	}
	return out
}

func typeSet(types []string) map[string]bool {
	var set map[string]bool
	for _, t := range types {
		k := firstUpper(strings.TrimSpace(t))
		if k == "" {
			continue
		}
		if set == nil {
			set = make(map[string]bool)
		}
		set[k] = true
	}
	return set
}

func firstUpper(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1])
}
