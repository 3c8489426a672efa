package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/model"
)

const (
	SheetSummary = "Summary"
	SheetSlots   = "Slots"
)

var (
	summaryColumns = []string{"Date", "Weekday", "Working", "Source", "Slots", "Available", "Booked"}
	slotColumns    = []string{"Date", "Start", "End", "Available", "Booked", "Status", "Client"}
	weekdayNames   = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
)

// sheetWriter appends rows to excelize sheets.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return w.file.SetPanes(w.currentSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

func (w *sheetWriter) writeRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

// WriteMonth renders the resolved days of [start, end] as an XLSX workbook.
// Dates without a resolved day are skipped.
func WriteMonth(out io.Writer, days map[string]model.DayAvailability, start, end string) error {
	dates, err := calendar.DaysInRange(start, end)
	if err != nil {
		return fmt.Errorf("export range: %w", err)
	}

	w := newSheetWriter()
	defer w.file.Close()

	selected := make([]model.DayAvailability, 0, len(dates))
	for _, date := range dates {
		if day, ok := days[date]; ok {
			selected = append(selected, day)
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Date < selected[j].Date })

	if err := w.addSheet(SheetSummary); err != nil {
		return err
	}
	if err := w.writeHeader(summaryColumns); err != nil {
		return err
	}
	for _, day := range selected {
		if err := w.writeRow(summaryRow(day)); err != nil {
			return err
		}
	}

	if err := w.addSheet(SheetSlots); err != nil {
		return err
	}
	if err := w.writeHeader(slotColumns); err != nil {
		return err
	}
	for _, day := range selected {
		if !day.IsWorkingDay {
			continue
		}
		for _, slot := range day.TimeSlots {
			if err := w.writeRow(slotRow(day.Date, slot)); err != nil {
				return err
			}
		}
	}

	return w.file.Write(out)
}

func summaryRow(day model.DayAvailability) []any {
	weekday := ""
	if idx, err := calendar.TemplateIndexForDate(day.Date); err == nil {
		weekday = weekdayNames[idx]
	}

	var available, booked int
	for _, s := range day.TimeSlots {
		if s.IsBooked {
			booked++
		}
		if s.Bookable() {
			available++
		}
	}
	return []any{day.Date, weekday, yesNo(day.IsWorkingDay), string(day.Source), len(day.TimeSlots), available, booked}
}

func slotRow(date string, slot model.TimeSlot) []any {
	client := ""
	if slot.BookingDetails != nil {
		client = slot.BookingDetails.ClientName
	}
	return []any{date, slot.StartTime, slot.EndTime, yesNo(slot.IsAvailable), yesNo(slot.IsBooked), slot.BookingStatus, client}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
