package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyDuration   = errors.New("empty duration")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrTooSmall        = errors.New("duration too small")
	ErrTooLarge        = errors.New("duration too large")
)

var (
	hoursRe   = regexp.MustCompile(`(?i)(\d+)\s*h`)
	minutesRe = regexp.MustCompile(`(?i)(\d+)\s*m`)
)

// ParseDurationHuman parses human-friendly durations like "30m", "1h30m", "90m", "12h".
// Plain numbers are hours. Accepted range: 1h <= d <= 72h.
func ParseDurationHuman(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, ErrEmptyDuration
	}

	var total time.Duration
	if n, err := strconv.Atoi(s); err == nil {
		total = time.Duration(n) * time.Hour
	} else {
		if mh := hoursRe.FindStringSubmatch(s); len(mh) == 2 {
			h, _ := strconv.Atoi(mh[1])
			total += time.Duration(h) * time.Hour
		}
		if mm := minutesRe.FindStringSubmatch(s); len(mm) == 2 {
			m, _ := strconv.Atoi(mm[1])
			total += time.Duration(m) * time.Minute
		}
		if total == 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
		}
	}

	if total < time.Hour {
		return 0, fmt.Errorf("%w: min 1h", ErrTooSmall)
	}
	if total > 72*time.Hour {
		return 0, fmt.Errorf("%w: max 72h", ErrTooLarge)
	}
	return total, nil
}

// ParseQuietHours parses "HH:MM–HH:MM" or "HH:MM-HH:MM" into minutes since midnight.
// Wrap-around ranges (22:00-08:00) are allowed; equal ends are not.
func ParseQuietHours(s string) (fromM, toM int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("%w: empty", ErrInvalidWindow)
	}
	sep := "–"
	if strings.Contains(s, "-") && !strings.Contains(s, "–") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: expected HH:MM–HH:MM", ErrInvalidWindow)
	}
	if fromM, err = parseHHMM(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("from: %w", err)
	}
	if toM, err = parseHHMM(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("to: %w", err)
	}
	if fromM == toM {
		return 0, 0, fmt.Errorf("%w: zero-length range", ErrInvalidWindow)
	}
	return fromM, toM, nil
}

func parseHHMM(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: expected HH:MM", ErrInvalidWindow)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: invalid hour", ErrInvalidWindow)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: invalid minute", ErrInvalidWindow)
	}
	return h*60 + m, nil
}

// ValidateTZ checks that the tz is a valid IANA location.
func ValidateTZ(tz string) (*time.Location, error) {
	return time.LoadLocation(tz)
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

// LocalizeTime formats t in loc as "02.01 15:04".
func LocalizeTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01 15:04")
}

// Gender values stored on a user profile.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

var ErrInvalidProfile = errors.New("invalid profile")

// ParseProfile parses "<age> <m|f|other>" as sent with /profile.
func ParseProfile(s string) (age int, gender string, err error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("%w: expected <age> <m|f|other>", ErrInvalidProfile)
	}
	age, err = strconv.Atoi(fields[0])
	if err != nil || age < 10 || age > 120 {
		return 0, "", fmt.Errorf("%w: age %q", ErrInvalidProfile, fields[0])
	}
	switch strings.ToLower(fields[1]) {
	case "m", "male":
		gender = GenderMale
	case "f", "female":
		gender = GenderFemale
	case "o", "other":
		gender = GenderOther
	default:
		return 0, "", fmt.Errorf("%w: gender %q", ErrInvalidProfile, fields[1])
	}
	return age, gender, nil
}
