package models

import (
	"fmt"
	"strings"
	"time"
)

const clockLayout = "15:04"

// OpenAt reports whether t falls inside one of the scheduled days. An interval whose close
// is not after its open runs past midnight into the next day.
func (h *WorkingHours) OpenAt(t time.Time) (bool, error) {
	location := time.UTC

	if h.Timezone != "" {
		loaded, err := time.LoadLocation(h.Timezone)
		if err != nil {
			return false, fmt.Errorf("invalid timezone %q: %w", h.Timezone, err)
		}

		location = loaded
	}

	local := t.In(location)
	now := local.Hour()*60 + local.Minute()
	today := strings.ToLower(local.Weekday().String())
	yesterday := strings.ToLower(local.AddDate(0, 0, -1).Weekday().String())

	for _, day := range h.Days {
		open, err := minutesOf(day.Open)
		if err != nil {
			return false, err
		}

		closing, err := minutesOf(day.Close)
		if err != nil {
			return false, err
		}

		name := strings.ToLower(day.Day)

		if closing > open {
			if name == today && now >= open && now < closing {
				return true, nil
			}

			continue
		}

		if (name == today && now >= open) || (name == yesterday && now < closing) {
			return true, nil
		}
	}

	return false, nil
}

func minutesOf(clock string) (int, error) {
	parsed, err := time.Parse(clockLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", clock, err)
	}

	return parsed.Hour()*60 + parsed.Minute(), nil
}
