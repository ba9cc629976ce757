// Package daterule computes billing occurrence and due dates on calendar dates.
// All arithmetic is on civil.Date values; no time zone is ever involved.
package daterule

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

// ErrNotRecurring is returned when an occurrence is requested for a one-time or unknown frequency
var ErrNotRecurring = errors.New("frequency has no next occurrence")

// step returns the day and month increment of one occurrence
func step(f entity.Frequency) (days, months int, err error) {
	switch f {
	case entity.FrequencyWeekly:
		return 7, 0, nil
	case entity.FrequencyBiweekly:
		return 14, 0, nil
	case entity.FrequencyMonthly:
		return 0, 1, nil
	case entity.FrequencyQuarterly:
		return 0, 3, nil
	case entity.FrequencyBiannually:
		return 0, 6, nil
	case entity.FrequencyAnnually:
		return 0, 12, nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrNotRecurring, f)
	}
}

// NextOccurrence returns the occurrence following d.
// Month based frequencies keep the day of month, clamped to the last day of the target month.
func NextOccurrence(d civil.Date, f entity.Frequency) (civil.Date, error) {
	return Occurrence(d, f, 1)
}

// Occurrence returns the n-th occurrence after anchor (n=0 is the anchor itself).
// Month based steps are measured from the anchor, so a Jan 31 series lands on
// Feb 28/29, Mar 31, Apr 30 rather than drifting to the 28th.
func Occurrence(anchor civil.Date, f entity.Frequency, n int) (civil.Date, error) {
	if n < 0 {
		return civil.Date{}, fmt.Errorf("occurrence index must not be negative: %d", n)
	}
	days, months, err := step(f)
	if err != nil {
		return civil.Date{}, err
	}
	if days > 0 {
		return anchor.AddDays(days * n), nil
	}
	return AddMonths(anchor, months*n), nil
}

// AddMonths adds calendar months to d, clamping the day to the target month's length
func AddMonths(d civil.Date, months int) civil.Date {
	total := int(d.Month) - 1 + months
	year := d.Year + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)

	day := d.Day
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// DaysIn returns the number of days in the given month
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DueDate returns issue + netDays; netDays of zero (or less) means due on issue.
func DueDate(issue civil.Date, netDays int) civil.Date {
	if netDays <= 0 {
		return issue
	}
	return issue.AddDays(netDays)
}

// HorizonEnd returns the first date outside a horizon of the given months from today
func HorizonEnd(today civil.Date, horizonMonths int) civil.Date {
	return AddMonths(today, horizonMonths)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
