package core

import (
	"fmt"
	"strings"
	"time"
)

func parseRelativeTime(value string, now time.Time) *time.Time {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return nil
	}

	unit := value[len(value)-1:]
	amountStr := value[:len(value)-1]
	var multiplier int64
	switch strings.ToLower(unit) {
	case "m":
		multiplier = 60
	case "h":
		multiplier = 3600
	case "d":
		multiplier = 86400
	case "w":
		multiplier = 604800
	default:
		return nil
	}
	amount := int64(0)
	for _, r := range amountStr {
		if r < '0' || r > '9' {
			return nil
		}
		amount = amount*10 + int64(r-'0')
	}
	if amount == 0 {
		return nil
	}

	ts := now.Add(-time.Duration(amount*multiplier) * time.Second)
	return &ts
}

func parseAbsoluteTime(value string, now time.Time) *time.Time {
	lower := strings.ToLower(strings.TrimSpace(value))
	if lower == "today" {
		ts := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return &ts
	}
	if lower == "yesterday" {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		ts := today.Add(-24 * time.Hour)
		return &ts
	}
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
		return &ts
	}
	return nil
}

// ParseSince converts "30m", "2h", "3d", "1w", "today", "yesterday" or an
// RFC 3339 timestamp into the instant it names, relative to now.
func ParseSince(expression string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(expression)
	if absolute := parseAbsoluteTime(trimmed, now); absolute != nil {
		return *absolute, nil
	}
	if relative := parseRelativeTime(trimmed, now); relative != nil {
		return *relative, nil
	}
	return time.Time{}, fmt.Errorf("invalid time expression: %s", expression)
}
