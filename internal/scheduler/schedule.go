package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/auraos/orchestrator/pkg/schema"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var weekdays = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

// CronSpec converts schedule trigger params into a 5-field cron expression.
func CronSpec(p *schema.ScheduleParams) (string, error) {
	switch p.Frequency {
	case schema.FrequencyHourly:
		if p.Minute < 0 || p.Minute > 59 {
			return "", fmt.Errorf("minute %d out of range 0-59", p.Minute)
		}
		return fmt.Sprintf("%d * * * *", p.Minute), nil
	case schema.FrequencyDaily, "":
		hour, minute, err := ParseClock(p.Time)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case schema.FrequencyWeekly:
		hour, minute, err := ParseClock(p.Time)
		if err != nil {
			return "", err
		}
		dow, err := ParseWeekday(p.DayOfWeek)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * %d", minute, hour, dow), nil
	case schema.FrequencyCron:
		if strings.TrimSpace(p.Cron) == "" {
			return "", fmt.Errorf("cron frequency requires a cron expression")
		}
		return p.Cron, nil
	default:
		return "", fmt.Errorf("unknown schedule frequency %q", p.Frequency)
	}
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// ParseWeekday accepts a day name ("monday", "mon") or a number 0-6 (0 = Sunday).
func ParseWeekday(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("invalid day_of_week %q", s)
	}
	return n, nil
}

// Parse compiles a cron expression.
func Parse(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return sched, nil
}

// Matches reports whether sched fires in the minute containing now. Only an
// exact minute match counts; a cycle that lands one minute late misses it.
func Matches(sched cron.Schedule, now time.Time) bool {
	minute := now.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// NextRun returns the next fire time of spec strictly after from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
