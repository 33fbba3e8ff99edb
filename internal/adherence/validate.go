package adherence

import (
	"fmt"
	"time"

	"github.com/hray3182/DoseLine/internal/apperror"
	"github.com/hray3182/DoseLine/internal/models"
)

func validateTimes(times []string) error {
	if len(times) == 0 {
		return apperror.Validation("times_of_day must not be empty", nil)
	}
	seen := make(map[string]bool, len(times))
	for _, t := range times {
		if !models.ValidTimeOfDay(t) {
			return apperror.Validation("times_of_day entries must be HH:mm",
				map[string]string{"times_of_day": t})
		}
		if seen[t] {
			return apperror.Validation("times_of_day entries must be unique",
				map[string]string{"times_of_day": t})
		}
		seen[t] = true
	}
	return nil
}

func validateChannels(channels []models.Channel) error {
	if len(channels) == 0 {
		return apperror.Validation("notify_via must not be empty", nil)
	}
	for _, c := range channels {
		if !c.Valid() {
			return apperror.Validation("unknown notification channel",
				map[string]string{"notify_via": string(c)})
		}
	}
	return nil
}

func validateMissedWindow(minutes int) error {
	if minutes < models.MinMissedWindowMinutes || minutes > models.MaxMissedWindowMinutes {
		return apperror.Validation(
			fmt.Sprintf("missed_window_minutes must be between %d and %d",
				models.MinMissedWindowMinutes, models.MaxMissedWindowMinutes),
			map[string]string{"missed_window_minutes": fmt.Sprint(minutes)})
	}
	return nil
}

func validateWindow(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return apperror.Validation("end_date must not be before start_date",
			map[string]string{
				"start_date": start.Format(time.DateOnly),
				"end_date":   end.Format(time.DateOnly),
			})
	}
	return nil
}
