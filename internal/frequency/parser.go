// Package frequency turns free-text dosing instructions into a cadence.
//
// Parsing is best effort and total: every input yields a schedule. Durations
// are deliberately approximate (a month is 30 days, a quarter 90, a year 365);
// refill dates downstream depend on this, so do not switch to calendar
// arithmetic without product sign-off.
package frequency

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hray3182/DoseLine/internal/models"
)

// DefaultDurationDays is used when no duration can be read
const DefaultDurationDays = 30

type Schedule struct {
	Frequency  models.Frequency
	TimesOfDay []string
	EndDate    time.Time
}

type rule struct {
	frequency models.Frequency
	phrases   []string
}

// rules are checked in order and the first match wins. Four-times must come
// before three-times, which must come before twice.
var rules = []rule{
	{models.FrequencyFourTimesDaily, []string{"four times", "4 times", "qid", "qds"}},
	{models.FrequencyThreeTimesDaily, []string{"three times", "3 times", "tds", "tid"}},
	{models.FrequencyTwiceDaily, []string{"twice", "two times", "2 times", "bd", "bid"}},
	{models.FrequencyEveryOtherDay, []string{"every other day", "alternate day", "eod"}},
	{models.FrequencyWeekly, []string{"weekly", "once a week", "every week"}},
}

// ParseFrequency maps instruction text to a cadence and its default times
func ParseFrequency(text string) (models.Frequency, []string) {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, phrase := range r.phrases {
			if strings.Contains(lower, phrase) {
				return r.frequency, r.frequency.DefaultTimes()
			}
		}
	}
	return models.FrequencyOnceDaily, models.FrequencyOnceDaily.DefaultTimes()
}

var numberRe = regexp.MustCompile(`\d+`)

type unit struct {
	keyword string
	days    int
}

var units = []unit{
	{"year", 365},
	{"quarter", 90},
	{"month", 30},
	{"week", 7},
	{"day", 1},
}

// DurationDays reads the first integer and a unit keyword from text
func DurationDays(text string) int {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return DefaultDurationDays
	}

	n, err := strconv.Atoi(numberRe.FindString(lower))
	if err != nil || n <= 0 {
		return DefaultDurationDays
	}

	for _, u := range units {
		if strings.Contains(lower, u.keyword) {
			return n * u.days
		}
	}
	return n
}

// EndDate returns the last day of an inclusive window of durationText starting at start
func EndDate(durationText string, start time.Time) time.Time {
	days := DurationDays(durationText)
	return start.AddDate(0, 0, days-1)
}

// Parse derives the full schedule for a prescription
func Parse(frequencyText, durationText string, start time.Time) Schedule {
	freq, times := ParseFrequency(frequencyText)
	return Schedule{
		Frequency:  freq,
		TimesOfDay: times,
		EndDate:    EndDate(durationText, start),
	}
}
