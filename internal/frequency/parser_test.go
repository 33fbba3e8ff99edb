package frequency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hray3182/DoseLine/internal/models"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		text  string
		freq  models.Frequency
		times []string
	}{
		{"Once daily", models.FrequencyOnceDaily, []string{"08:00"}},
		{"", models.FrequencyOnceDaily, []string{"08:00"}},
		{"as directed", models.FrequencyOnceDaily, []string{"08:00"}},
		{"Twice daily", models.FrequencyTwiceDaily, []string{"08:00", "20:00"}},
		{"BD", models.FrequencyTwiceDaily, []string{"08:00", "20:00"}},
		{"1 tab bid", models.FrequencyTwiceDaily, []string{"08:00", "20:00"}},
		{"3 times a day", models.FrequencyThreeTimesDaily, []string{"08:00", "14:00", "20:00"}},
		{"TDS after meals", models.FrequencyThreeTimesDaily, []string{"08:00", "14:00", "20:00"}},
		{"Four times daily", models.FrequencyFourTimesDaily, []string{"08:00", "12:00", "16:00", "20:00"}},
		{"qid", models.FrequencyFourTimesDaily, []string{"08:00", "12:00", "16:00", "20:00"}},
		{"Every other day", models.FrequencyEveryOtherDay, []string{"08:00"}},
		{"Once a week", models.FrequencyWeekly, []string{"08:00"}},
		{"WEEKLY on mondays", models.FrequencyWeekly, []string{"08:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			freq, times := ParseFrequency(tt.text)
			assert.Equal(t, tt.freq, freq)
			assert.Equal(t, tt.times, times)
		})
	}
}

func TestParseFrequencyPriority(t *testing.T) {
	// "three times" must win over any looser twice-daily reading
	freq, _ := ParseFrequency("take three times daily")
	assert.Equal(t, models.FrequencyThreeTimesDaily, freq)

	// four-times is checked before three-times
	freq, _ = ParseFrequency("four times daily, not three times")
	assert.Equal(t, models.FrequencyFourTimesDaily, freq)

	// twice is checked before weekly
	freq, _ = ParseFrequency("twice weekly")
	assert.Equal(t, models.FrequencyTwiceDaily, freq)
}

func TestParseFrequencyDeterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		freq, times := ParseFrequency("3 times a day")
		assert.Equal(t, models.FrequencyThreeTimesDaily, freq)
		assert.Equal(t, []string{"08:00", "14:00", "20:00"}, times)
	}
}

func TestDurationDays(t *testing.T) {
	tests := []struct {
		text string
		days int
	}{
		{"3 months", 90},
		{"1 month", 30},
		{"2 weeks", 14},
		{"10 days", 10},
		{"1 year", 365},
		{"1 quarter", 90},
		{"14", 14},
		{"", DefaultDurationDays},
		{"until finished", DefaultDurationDays},
		{"for 0 days", DefaultDurationDays},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.days, DurationDays(tt.text))
		})
	}
}

func TestParseThreeMonthsIsApproximate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s := Parse("Twice daily", "3 months", start)

	assert.Equal(t, models.FrequencyTwiceDaily, s.Frequency)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), s.EndDate)
	// not a calendar-accurate three month add
	assert.NotEqual(t, start.AddDate(0, 3, 0), s.EndDate)
}

func TestParseDefaultsToThirtyDays(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	s := Parse("", "", start)

	assert.Equal(t, models.FrequencyOnceDaily, s.Frequency)
	assert.Equal(t, []string{"08:00"}, s.TimesOfDay)
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), s.EndDate)
}
