package analytics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hray3182/DoseLine/internal/rrule"
)

const (
	sheetSummary     = "Summary"
	sheetMedications = "Medications"
	sheetTrend       = "Weekly Trend"
	sheetRecent      = "Recent Doses"
	sheetReminders   = "Active Reminders"
)

type sheet struct {
	name    string
	headers []string
	widths  []float64
	rows    [][]any
}

// GenerateAdherenceWorkbook renders the practitioner view, one sheet per section
func GenerateAdherenceWorkbook(view *PatientAdherence, loc *time.Location) ([]byte, error) {
	s := view.Summary
	sheets := []sheet{
		{
			name:    sheetSummary,
			headers: []string{"Metric", "Value"},
			widths:  []float64{28, 20},
			rows: [][]any{
				{"Patient", view.PatientID},
				{"Overall Compliance (%)", s.OverallCompliance},
				{"Current Streak", s.CurrentStreak},
				{"Longest Streak", s.LongestStreak},
				{"Total Doses", s.Counts.Total},
				{"Taken", s.Counts.Taken},
				{"Skipped", s.Counts.Skipped},
				{"Missed", s.Counts.Missed},
				{"Pending", s.Counts.Pending},
			},
		},
		{
			name:    sheetMedications,
			headers: []string{"Medication", "Dosage", "Total", "Taken", "Compliance (%)"},
			widths:  []float64{28, 15, 10, 10, 16},
		},
		{
			name:    sheetTrend,
			headers: []string{"Date", "Taken", "Total", "Compliance (%)"},
			widths:  []float64{14, 10, 10, 16},
		},
		{
			name:    sheetRecent,
			headers: []string{"Scheduled At", "Medication", "Dosage", "Status", "Responded At", "Reason"},
			widths:  []float64{20, 28, 15, 12, 20, 30},
		},
		{
			name:    sheetReminders,
			headers: []string{"Reminder ID", "Schedule", "Start Date", "End Date", "Channels", "Missed Window (min)"},
			widths:  []float64{38, 36, 14, 14, 20, 20},
		},
	}

	for _, m := range s.Medications {
		sheets[1].rows = append(sheets[1].rows, []any{m.MedicationName, m.Dosage, m.Total, m.Taken, m.Compliance})
	}
	for _, d := range s.WeeklyTrend {
		sheets[2].rows = append(sheets[2].rows, []any{d.Date, d.Taken, d.Total, d.Compliance})
	}
	for _, l := range view.RecentLogs {
		responded, reason := "", ""
		if l.RespondedAt != nil {
			responded = l.RespondedAt.In(loc).Format("2006-01-02 15:04")
		}
		if l.Reason != nil {
			reason = *l.Reason
		}
		sheets[3].rows = append(sheets[3].rows, []any{
			l.ScheduledAt.In(loc).Format("2006-01-02 15:04"), l.MedicationName, l.Dosage,
			string(l.Status), responded, reason,
		})
	}
	for _, r := range view.ActiveReminders {
		end := "open-ended"
		if r.EndDate != nil {
			end = r.EndDate.Format(time.DateOnly)
		}
		channels := make([]string, len(r.NotifyVia))
		for i, c := range r.NotifyVia {
			channels[i] = string(c)
		}
		sheets[4].rows = append(sheets[4].rows, []any{
			r.ReminderID, rrule.Describe(r), r.StartDate.Format(time.DateOnly), end,
			strings.Join(channels, ", "), r.MissedWindowMinutes,
		})
	}

	return renderWorkbook(sheets)
}

func renderWorkbook(sheets []sheet) ([]byte, error) {
	f := excelize.NewFile()
	// f must stay open until WriteTo returns

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, sh := range sheets {
		if err := writeSheet(f, sh, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
		if i == 0 {
			index, err := f.GetSheetIndex(sh.name)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to find sheet %s: %w", sh.name, err)
			}
			f.SetActiveSheet(index)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sh sheet, headerStyle int) error {
	if _, err := f.NewSheet(sh.name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sh.name, err)
	}

	for col, header := range sh.headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sh.name, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sh.name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i, width := range sh.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sh.name, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for r, row := range sh.rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		values := row
		if err := f.SetSheetRow(sh.name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", r+2, sh.name, err)
		}
	}

	if err := f.SetPanes(sh.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}
