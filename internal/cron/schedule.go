package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule refreshes every five minutes.
const DefaultSchedule = "300"

// ParseSchedule accepts integer seconds ("300"), a Go duration ("5m") or a
// standard five-field cron expression ("*/5 * * * *").
func ParseSchedule(setting string) (cron.Schedule, error) {
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return nil, errors.New("empty refresh schedule")
	}

	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return nil, fmt.Errorf("refresh interval must be positive, got %d seconds", v)
		}
		return cron.Every(time.Duration(v) * time.Second), nil
	}

	if d, err := time.ParseDuration(setting); err == nil {
		if d < time.Second {
			return nil, fmt.Errorf("refresh interval %s is below one second", d)
		}
		return cron.Every(d), nil
	}

	sched, err := cron.ParseStandard(setting)
	if err != nil {
		return nil, fmt.Errorf("refresh schedule %q is not seconds, a duration or a cron expression: %w", setting, err)
	}
	return sched, nil
}

// MaxCycleDuration is the worst-case wall time of one refresh cycle.
func MaxCycleDuration(attempts int, fetchTimeout, retryDelay time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts)*fetchTimeout + time.Duration(attempts-1)*retryDelay
}

// shortestGap estimates the smallest spacing between two runs of sched.
func shortestGap(sched cron.Schedule, from time.Time) time.Duration {
	if cd, ok := sched.(cron.ConstantDelaySchedule); ok {
		return cd.Delay
	}
	gap := time.Duration(-1)
	t := sched.Next(from)
	for i := 0; i < 8; i++ {
		n := sched.Next(t)
		if d := n.Sub(t); gap < 0 || d < gap {
			gap = d
		}
		t = n
	}
	return gap
}
