package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Five-field expressions only (minute hour dom month dow), the same format
// the asynq scheduler accepts.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr rejects anything the worker scheduler would fail on at
// registration time.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextCronTime returns the first occurrence strictly after from, in UTC.
func NextCronTime(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule.Next(from.UTC()), nil
}

// CronInterval is the gap between the next two runs of expr after from. The
// worker uses it as the uniqueness window of the domain sweep so a slow run
// is never joined by the next one.
func CronInterval(expr string, from time.Time) (time.Duration, error) {
	first, err := NextCronTime(expr, from)
	if err != nil {
		return 0, err
	}
	second, err := NextCronTime(expr, first)
	if err != nil {
		return 0, err
	}
	return second.Sub(first), nil
}
