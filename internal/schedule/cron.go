package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

// ErrInvalidCount is returned when fewer than one run time is requested.
var ErrInvalidCount = errors.New("schedule: count must be at least 1")

func parseCron(cron string) (*cronexpr.Expression, error) {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cron, err)
	}
	return expr, nil
}

// NextRunTimes returns the next n times a clip schedule fires, in UTC.
func NextRunTimes(cron string, n int) ([]time.Time, error) {
	return NextRunTimesAfter(cron, time.Now().UTC(), n)
}

// NextRunTimesAfter is NextRunTimes counted from after instead of now.
func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n < 1 {
		return nil, ErrInvalidCount
	}
	expr, err := parseCron(cron)
	if err != nil {
		return nil, err
	}
	return expr.NextN(after, uint(n)), nil
}

// ValidateCron reports whether cron can drive a schedule. Expressions that
// never fire again are rejected too.
func ValidateCron(cron string) error {
	expr, err := parseCron(cron)
	if err != nil {
		return err
	}
	if expr.Next(time.Now()).IsZero() {
		return fmt.Errorf("cron expression %q never fires", cron)
	}
	return nil
}
