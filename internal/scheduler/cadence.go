package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dockup-scheduler/internal/apperrors"

	"github.com/robfig/cron/v3"
)

// ParseCadence parses a schedule expression. Accepted forms:
//
//	every <duration>     every 1m, every 6h
//	daily at HH:MM       daily at 2:15 (local time)
//	cron expression      */5 * * * *, @hourly, @every 90s
func ParseCadence(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, apperrors.Validation("schedule", "schedule is required")
	}

	if rest, ok := strings.CutPrefix(spec, "every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, apperrors.Validation("schedule", fmt.Sprintf("invalid interval in %q: %v", spec, err))
		}
		if d < time.Second {
			return nil, apperrors.Validation("schedule", fmt.Sprintf("interval in %q must be at least 1s", spec))
		}
		return cron.Every(d), nil
	}

	if rest, ok := strings.CutPrefix(spec, "daily at "); ok {
		hour, minute, err := parseClock(strings.TrimSpace(rest))
		if err != nil {
			return nil, apperrors.Validation("schedule", fmt.Sprintf("invalid time in %q: %v", spec, err))
		}
		return cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	}

	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, apperrors.Validation("schedule", fmt.Sprintf("invalid schedule %q: %v", spec, err))
	}
	return sched, nil
}

// parseClock parses H:MM or HH:MM.
func parseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(m) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour out of range in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute out of range in %q", s)
	}
	return hour, minute, nil
}
