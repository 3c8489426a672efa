package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/calendar"
	"slotkeeper/internal/export"
	"slotkeeper/internal/model"
	"slotkeeper/internal/session"
)

// MaxRangeDays bounds availability and export requests.
const MaxRangeDays = 92

// AvailabilityResponse is the response for GET /api/providers/{id}/availability.
type AvailabilityResponse struct {
	ProviderID int64                            `json:"provider_id"`
	Start      string                           `json:"start"`
	End        string                           `json:"end"`
	Days       map[string]model.DayAvailability `json:"days"`
}

// BookableResponse is the response for GET /api/providers/{id}/bookable.
type BookableResponse struct {
	ProviderID int64            `json:"provider_id"`
	Date       string           `json:"date"`
	Slots      []model.TimeSlot `json:"slots"`
}

// MutationResponse reports a mutation and the day as it stands afterwards.
type MutationResponse struct {
	Success    bool                   `json:"success"`
	RolledBack bool                   `json:"rolled_back,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Day        *model.DayAvailability `json:"day,omitempty"`
}

// RegenerateRequest is the body of POST /api/providers/{id}/days/{date}/regenerate.
type RegenerateRequest struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration int    `json:"duration"`
}

func (s *HTTPServer) openSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid provider id")
		return nil, false
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int64("provider_id", id).Msg("failed to open session")
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	return sess, true
}

// loadRange makes sure every month touching [start, end] is resolved.
func loadRange(r *http.Request, sess *session.Session, start, end string) error {
	for month := start; month <= end; {
		if err := sess.EnsureMonth(r.Context(), month); err != nil {
			return err
		}
		_, last, err := calendar.MonthWindow(month)
		if err != nil {
			return err
		}
		if month, err = calendar.AddDays(last, 1); err != nil {
			return err
		}
	}
	return nil
}

func (s *HTTPServer) parseRange(r *http.Request) (string, string, error) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" && end == "" {
		return calendar.MonthWindow(calendar.FormatDate(s.now()))
	}
	if start == "" || end == "" {
		return "", "", fmt.Errorf("start and end are required")
	}
	days, err := calendar.DaysInRange(start, end)
	if err != nil {
		return "", "", fmt.Errorf("invalid range; expected YYYY-MM-DD")
	}
	if len(days) == 0 {
		return "", "", fmt.Errorf("start must be before or equal to end")
	}
	if len(days) > MaxRangeDays {
		return "", "", fmt.Errorf("date range exceeds maximum of %d days", MaxRangeDays)
	}
	return start, end, nil
}

// handleAvailability returns the resolved days of a range, defaulting to the current month.
// GET /api/providers/{id}/availability?start=&end=
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := loadRange(r, sess, start, end); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	days := make(map[string]model.DayAvailability)
	for date, day := range sess.Engine.GetAvailability() {
		if date >= start && date <= end {
			days[date] = day
		}
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ProviderID: sess.ProviderID,
		Start:      start,
		End:        end,
		Days:       days,
	})
}

// GET /api/providers/{id}/bookable?date=
func (s *HTTPServer) handleBookable(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := calendar.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := sess.EnsureMonth(r.Context(), date); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	slots, err := sess.Engine.BookableSlots(date)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, BookableResponse{ProviderID: sess.ProviderID, Date: date, Slots: slots})
}

// POST /api/providers/{id}/days/{date}/toggle
func (s *HTTPServer) handleToggleDay(w http.ResponseWriter, r *http.Request) {
	sess, date, ok := s.mutationTarget(w, r)
	if !ok {
		return
	}
	s.writeMutation(w, sess, date, sess.Engine.ToggleWorkingDay(r.Context(), date))
}

// POST /api/providers/{id}/days/{date}/slots/{slotID}/toggle
func (s *HTTPServer) handleToggleSlot(w http.ResponseWriter, r *http.Request) {
	sess, date, ok := s.mutationTarget(w, r)
	if !ok {
		return
	}

	slot := model.TimeSlot{ID: r.PathValue("slotID")}
	if day, found := sess.Engine.Day(date); found {
		if i := day.SlotIndex(slot.ID); i >= 0 {
			slot = day.TimeSlots[i]
		}
	}
	s.writeMutation(w, sess, date, sess.Engine.ToggleTimeSlot(r.Context(), date, slot))
}

// POST /api/providers/{id}/days/{date}/regenerate
func (s *HTTPServer) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, date, ok := s.mutationTarget(w, r)
	if !ok {
		return
	}
	if req.Duration == 0 {
		req.Duration = sess.Engine.Settings().SlotDurationMinutes
	}
	s.writeMutation(w, sess, date, sess.Engine.RegenerateDaySlots(r.Context(), date, req.Start, req.End, req.Duration))
}

// handleRefresh drops cached and resolved data and reloads the month of ?date (default today).
// POST /api/providers/{id}/refresh
func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = calendar.FormatDate(s.now())
	}
	if _, err := calendar.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := sess.Refresh(r.Context(), date); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider_id": sess.ProviderID, "refreshed": true})
}

// GET /api/providers/{id}/export?start=&end=
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := loadRange(r, sess, start, end); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	filename := fmt.Sprintf("availability_%d_%s_%s.xlsx", sess.ProviderID, start, end)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteMonth(w, sess.Engine.GetAvailability(), start, end); err != nil {
		s.logger.Error().Err(err).Int64("provider_id", sess.ProviderID).Msg("export failed")
	}
}

func (s *HTTPServer) mutationTarget(w http.ResponseWriter, r *http.Request) (*session.Session, string, bool) {
	date := r.PathValue("date")
	if _, err := calendar.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return nil, "", false
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return nil, "", false
	}
	if err := sess.EnsureMonth(r.Context(), date); err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil, "", false
	}
	return sess, date, true
}

func (s *HTTPServer) writeMutation(w http.ResponseWriter, sess *session.Session, date string, res availability.MutationResult) {
	resp := MutationResponse{Success: res.Success, RolledBack: res.RolledBack}
	if day, ok := sess.Engine.Day(date); ok {
		resp.Day = &day
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
		writeJSON(w, statusFor(res.Err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
