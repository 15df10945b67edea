package units

import (
	"fmt"
	"time"
)

// DefaultTimezone is used when no timezone is configured. Device files
// record naive local wall-clock times.
const DefaultTimezone = "UTC"

// IsTimezoneValid checks if the given timezone is valid by attempting to load it from the tz database
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// LoadLocation resolves a timezone name, treating the empty string as
// DefaultTimezone.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" || tz == DefaultTimezone {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}
