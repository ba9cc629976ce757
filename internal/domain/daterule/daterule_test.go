package daterule

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: timeMonth(m), Day: d}
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name string
		from civil.Date
		freq entity.Frequency
		want civil.Date
	}{
		{"weekly", date(2024, 1, 15), entity.FrequencyWeekly, date(2024, 1, 22)},
		{"weekly crosses month", date(2024, 1, 29), entity.FrequencyWeekly, date(2024, 2, 5)},
		{"biweekly", date(2024, 12, 25), entity.FrequencyBiweekly, date(2025, 1, 8)},
		{"monthly keeps day", date(2024, 1, 15), entity.FrequencyMonthly, date(2024, 2, 15)},
		{"monthly clamps leap february", date(2024, 1, 31), entity.FrequencyMonthly, date(2024, 2, 29)},
		{"monthly clamps february", date(2023, 1, 31), entity.FrequencyMonthly, date(2023, 2, 28)},
		{"monthly clamps april", date(2024, 3, 31), entity.FrequencyMonthly, date(2024, 4, 30)},
		{"monthly crosses year", date(2024, 12, 31), entity.FrequencyMonthly, date(2025, 1, 31)},
		{"quarterly", date(2024, 11, 30), entity.FrequencyQuarterly, date(2025, 2, 28)},
		{"biannually", date(2024, 8, 31), entity.FrequencyBiannually, date(2025, 2, 28)},
		{"annually leap day", date(2024, 2, 29), entity.FrequencyAnnually, date(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.from, tt.freq)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrence_OneTimeIsError(t *testing.T) {
	_, err := NextOccurrence(date(2024, 1, 1), entity.FrequencyOneTime)
	assert.ErrorIs(t, err, ErrNotRecurring)

	_, err = NextOccurrence(date(2024, 1, 1), entity.Frequency("fortnightly"))
	assert.ErrorIs(t, err, ErrNotRecurring)
}

func TestOccurrence_MonthEndDoesNotDrift(t *testing.T) {
	anchor := date(2024, 1, 31)
	want := []civil.Date{
		date(2024, 1, 31), date(2024, 2, 29), date(2024, 3, 31), date(2024, 4, 30),
		date(2024, 5, 31), date(2024, 6, 30), date(2024, 7, 31), date(2024, 8, 31),
		date(2024, 9, 30), date(2024, 10, 31), date(2024, 11, 30), date(2024, 12, 31),
	}
	for n, w := range want {
		got, err := Occurrence(anchor, entity.FrequencyMonthly, n)
		require.NoError(t, err)
		assert.Equal(t, w, got, "occurrence %d", n)
	}
}

func TestNextOccurrence_ChainedNeverDecreasesOrSkipsMonth(t *testing.T) {
	freqs := []entity.Frequency{
		entity.FrequencyWeekly, entity.FrequencyBiweekly, entity.FrequencyMonthly,
		entity.FrequencyQuarterly, entity.FrequencyBiannually, entity.FrequencyAnnually,
	}
	anchors := []civil.Date{date(2024, 1, 31), date(2023, 1, 29), date(2024, 2, 29), date(2024, 12, 31), date(2025, 6, 15)}

	for _, f := range freqs {
		for _, a := range anchors {
			d := a
			for i := 0; i < 24; i++ {
				next, err := NextOccurrence(d, f)
				require.NoError(t, err)
				assert.True(t, next.After(d), "%s from %s went to %s", f, d, next)

				if _, months, _ := step(f); months > 0 {
					gotMonths := (next.Year-d.Year)*12 + int(next.Month) - int(d.Month)
					assert.Equal(t, months, gotMonths, "%s from %s skipped to %s", f, d, next)
				}
				d = next
			}
		}
	}
}

func TestDueDate(t *testing.T) {
	issue := date(2024, 1, 15)
	assert.Equal(t, issue, DueDate(issue, 0))
	assert.Equal(t, date(2024, 1, 29), DueDate(issue, 14))
	assert.Equal(t, date(2024, 2, 14), DueDate(issue, 30))
	assert.Equal(t, date(2024, 3, 1), DueDate(date(2024, 2, 28), 2))

	for n := 1; n <= 90; n++ {
		assert.Equal(t, n, DueDate(issue, n).DaysSince(issue))
	}
}

func TestAddMonths_Negative(t *testing.T) {
	assert.Equal(t, date(2023, 12, 31), AddMonths(date(2024, 1, 31), -1))
	assert.Equal(t, date(2023, 2, 28), AddMonths(date(2024, 2, 29), -12))
}

func TestHorizonEnd(t *testing.T) {
	assert.Equal(t, date(2025, 1, 15), HorizonEnd(date(2024, 1, 15), 12))
}

func timeMonth(m int) time.Month { return time.Month(m) }
