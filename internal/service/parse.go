package service

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DateTimeLayout = "2006-01-02 15:04"
	DateLayout     = "2006-01-02"
)

var (
	ErrInvalidDateTime = errors.New("invalid date format, use YYYY-MM-DD HH:MM")
	ErrInvalidDate     = errors.New("invalid date format, use YYYY-MM-DD")
	ErrInvalidPeriod   = errors.New("invalid period, use a form like 1d12h30m")
	ErrInvalidCount    = errors.New("count must be a positive number")
)

var periodPart = regexp.MustCompile(`(\d+)\s*([dhm])`)

// ParseDateTime parses "YYYY-MM-DD HH:MM" in loc.
func ParseDateTime(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, ErrInvalidDateTime
	}
	return t, nil
}

// ParseDate parses "YYYY-MM-DD" in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// ParsePeriod parses periods such as "1d12h30m", "2d" or "45m".
func ParsePeriod(raw string) (time.Duration, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	matches := periodPart.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return 0, ErrInvalidPeriod
	}
	// Anything besides the matched parts and spaces is rejected.
	if rest := strings.TrimSpace(periodPart.ReplaceAllString(raw, "")); rest != "" {
		return 0, ErrInvalidPeriod
	}

	var total time.Duration
	for _, m := range matches {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, ErrInvalidPeriod
		}
		unit := time.Minute
		switch m[2] {
		case "d":
			unit = 24 * time.Hour
		case "h":
			unit = time.Hour
		}
		// Periods must fit in a time.Duration without wrapping.
		if n > math.MaxInt64/int64(unit) {
			return 0, ErrInvalidPeriod
		}
		part := time.Duration(n) * unit
		if total > math.MaxInt64-part {
			return 0, ErrInvalidPeriod
		}
		total += part
	}
	if total <= 0 {
		return 0, ErrInvalidPeriod
	}
	return total, nil
}

// ParseCount parses a positive repeat count.
func ParseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, ErrInvalidCount
	}
	return n, nil
}

// ParseYesNo understands yes/y/no/n in any case.
func ParseYesNo(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("please answer with 'yes' or 'no'")
}
