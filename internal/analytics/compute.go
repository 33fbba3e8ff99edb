// Package analytics computes compliance, streaks, trends and refill estimates
// from adherence log history. The computations in this file are pure.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

const (
	// RefillWarningDays flags a refill once this many days of doses or fewer remain
	RefillWarningDays = 7
	trendDays         = 7
)

type Counts struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Taken   int `json:"taken"`
	Skipped int `json:"skipped"`
	Missed  int `json:"missed"`
}

type MedicationBreakdown struct {
	PrescriptionID string `json:"prescription_id"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Total          int    `json:"total"`
	Taken          int    `json:"taken"`
	Compliance     int    `json:"compliance"`
}

type DayTrend struct {
	Date       string `json:"date"` // YYYY-MM-DD
	Taken      int    `json:"taken"`
	Total      int    `json:"total"`
	Compliance int    `json:"compliance"`
}

type Summary struct {
	OverallCompliance int                   `json:"overall_compliance"`
	CurrentStreak     int                   `json:"current_streak"`
	LongestStreak     int                   `json:"longest_streak"`
	Counts            Counts                `json:"counts"`
	Medications       []MedicationBreakdown `json:"medications"`
	WeeklyTrend       []DayTrend            `json:"weekly_trend"`
}

// Summarize computes the adherence summary of logs as of today. PENDING logs
// are counted but excluded from compliance and streaks.
func Summarize(logs []models.LogEntry, today time.Time, loc *time.Location) Summary {
	resolved := nonPending(logs)

	taken := 0
	for _, l := range resolved {
		if l.Status == models.LogTaken {
			taken++
		}
	}

	current, longest := streaks(resolved)
	return Summary{
		OverallCompliance: percent(taken, len(resolved)),
		CurrentStreak:     current,
		LongestStreak:     longest,
		Counts:            count(logs),
		Medications:       breakdown(resolved),
		WeeklyTrend:       weeklyTrend(resolved, today, loc),
	}
}

// nonPending returns the resolved logs sorted oldest first
func nonPending(logs []models.LogEntry) []models.LogEntry {
	out := make([]models.LogEntry, 0, len(logs))
	for _, l := range logs {
		if l.Status != models.LogPending {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].LogID < out[j].LogID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

// streaks expects logs sorted oldest first
func streaks(logs []models.LogEntry) (current, longest int) {
	run := 0
	for _, l := range logs {
		if l.Status == models.LogTaken {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	for i := len(logs) - 1; i >= 0 && logs[i].Status == models.LogTaken; i-- {
		current++
	}
	return current, longest
}

func count(logs []models.LogEntry) Counts {
	c := Counts{Total: len(logs)}
	for _, l := range logs {
		switch l.Status {
		case models.LogPending:
			c.Pending++
		case models.LogTaken:
			c.Taken++
		case models.LogSkipped:
			c.Skipped++
		case models.LogMissed:
			c.Missed++
		}
	}
	return c
}

func breakdown(logs []models.LogEntry) []MedicationBreakdown {
	byPrescription := make(map[string]*MedicationBreakdown)
	var order []string
	for _, l := range logs {
		b, ok := byPrescription[l.PrescriptionID]
		if !ok {
			b = &MedicationBreakdown{
				PrescriptionID: l.PrescriptionID,
				MedicationName: l.MedicationName,
				Dosage:         l.Dosage,
			}
			byPrescription[l.PrescriptionID] = b
			order = append(order, l.PrescriptionID)
		}
		b.Total++
		if l.Status == models.LogTaken {
			b.Taken++
		}
	}

	out := make([]MedicationBreakdown, 0, len(order))
	for _, id := range order {
		b := byPrescription[id]
		b.Compliance = percent(b.Taken, b.Total)
		out = append(out, *b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MedicationName < out[j].MedicationName
	})
	return out
}

// weeklyTrend reports the last seven calendar days, oldest first, ending today
func weeklyTrend(logs []models.LogEntry, today time.Time, loc *time.Location) []DayTrend {
	start := clock.StartOfDay(today, loc).AddDate(0, 0, -(trendDays - 1))
	trend := make([]DayTrend, trendDays)
	index := make(map[string]int, trendDays)
	for i := range trend {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		trend[i].Date = date
		index[date] = i
	}

	for _, l := range logs {
		i, ok := index[l.ScheduledAt.In(loc).Format(time.DateOnly)]
		if !ok {
			continue
		}
		trend[i].Total++
		if l.Status == models.LogTaken {
			trend[i].Taken++
		}
	}
	for i := range trend {
		trend[i].Compliance = percent(trend[i].Taken, trend[i].Total)
	}
	return trend
}

type RefillStatus struct {
	ReminderID             string    `json:"reminder_id"`
	PrescriptionID         string    `json:"prescription_id"`
	TotalQuantity          int       `json:"total_quantity"`
	Taken                  int       `json:"taken"`
	Remaining              int       `json:"remaining"`
	DosesPerDay            int       `json:"doses_per_day"`
	EstimatedDaysRemaining int       `json:"estimated_days_remaining"`
	EstimatedDepletionDate time.Time `json:"estimated_depletion_date"`
	NeedsRefillSoon        bool      `json:"needs_refill_soon"`
}

// EstimateRefill projects how long the remaining supply lasts at the configured dose rate
func EstimateRefill(totalQuantity, taken, dosesPerDay int, today time.Time) RefillStatus {
	remaining := totalQuantity - taken
	if remaining < 0 {
		remaining = 0
	}
	days := 0
	if dosesPerDay > 0 {
		days = remaining / dosesPerDay
	}
	return RefillStatus{
		TotalQuantity:          totalQuantity,
		Taken:                  taken,
		Remaining:              remaining,
		DosesPerDay:            dosesPerDay,
		EstimatedDaysRemaining: days,
		EstimatedDepletionDate: today.AddDate(0, 0, days),
		NeedsRefillSoon:        days <= RefillWarningDays,
	}
}
