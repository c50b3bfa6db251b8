package clientapp

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/attendance"
	"github.com/phillip-england/hrsuite/internal/hrapi"
	"github.com/phillip-england/hrsuite/internal/paging"
	"github.com/phillip-england/hrsuite/internal/session"
	"github.com/phillip-england/hrsuite/internal/spreadsheet"
)

const (
	historyPageSize      = 10
	recentAttendanceSize = 10
	employeePreviewSize  = 5
	exportPageLimit      = 500
)

func (s *server) dashboardPage(w http.ResponseWriter, r *http.Request) {
	if snapshotOf(r).Role() != session.RoleAdmin {
		s.attendancePage(w, r)
		return
	}

	b := browserFrom(r)
	ctx := r.Context()
	var (
		wg         sync.WaitGroup
		summary    hrapi.Summary
		recent     paging.Page[attendance.Day]
		employees  paging.Page[hrapi.Employee]
		summaryErr error
		recentErr  error
		empErr     error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		summary, summaryErr = b.hr.AdminSummary(ctx)
	}()
	go func() {
		defer wg.Done()
		recent, recentErr = b.workflow.AllHistory(ctx, 1, recentAttendanceSize)
	}()
	go func() {
		defer wg.Done()
		employees, empErr = b.hr.ListEmployees(ctx, 1, employeePreviewSize)
	}()
	wg.Wait()

	for _, err := range []error{summaryErr, recentErr, empErr} {
		if err != nil && s.handleAPIError(w, r, err) {
			return
		}
	}

	errMsg, msg := flash(r)
	data := pageData{Title: "Dashboard", Error: errMsg, Message: msg, Summary: summary}
	switch {
	case summaryErr != nil:
		data.Error = apperr.UserMessage(summaryErr, "Failed to load summary")
	case recentErr != nil:
		data.Error = apperr.UserMessage(recentErr, "Failed to load attendance")
	case empErr != nil:
		data.Error = apperr.UserMessage(empErr, "Failed to load employees")
	}
	data.RecentAttendance = recent.Items
	data.Preview = employees.Items
	if len(data.Preview) > employeePreviewSize {
		data.Preview = data.Preview[:employeePreviewSize]
	}
	data.PreviewMore = max(0, employees.Total-len(data.Preview))
	s.render(w, r, "admin_dashboard.html", data)
}

func (s *server) attendancePage(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	ctx := r.Context()
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)

	status, err := b.workflow.Today(ctx)
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		s.render(w, r, "attendance.html", pageData{
			Title: "Attendance",
			Error: apperr.UserMessage(err, "Failed to fetch attendance status"),
		})
		return
	}
	if err := b.attendanceCache().Save(ctx, status); err != nil {
		s.logger.Warn("cache attendance status failed", "err", err)
	}

	history, err := b.workflow.History(ctx, page, historyPageSize)
	errMsg, msg := flash(r)
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		errMsg = apperr.UserMessage(err, "Failed to fetch attendance history")
	}
	s.render(w, r, "attendance.html", pageData{
		Title:   "Attendance",
		Error:   errMsg,
		Message: msg,
		Status:  status,
		Days:    history,
	})
}

func (s *server) checkIn(w http.ResponseWriter, r *http.Request) {
	s.punch(w, r, attendance.ActionCheckIn)
}

func (s *server) checkOut(w http.ResponseWriter, r *http.Request) {
	s.punch(w, r, attendance.ActionCheckOut)
}

// punch validates against the status cached when the attendance page was
// rendered, so an out-of-order submission is refused without contacting
// the API. Without a cached status it is derived once, as on page load.
func (s *server) punch(w http.ResponseWriter, r *http.Request, action attendance.Action) {
	b := browserFrom(r)
	ctx := r.Context()
	cache := b.attendanceCache()

	today := attendance.Today(s.now(), s.loc)
	status, ok := cache.Load(ctx, today)
	if !ok {
		var err error
		status, err = b.workflow.Today(ctx)
		if err != nil {
			s.failTo(w, r, "/attendance", err, "Failed to fetch attendance status")
			return
		}
	}

	locator := attendance.FormLocator{
		Lat:      r.FormValue("lat"),
		Lng:      r.FormValue("lng"),
		Accuracy: r.FormValue("accuracy"),
		Error:    r.FormValue("geo_error"),
	}

	var (
		next   attendance.Status
		result attendance.PunchResult
		err    error
	)
	if action == attendance.ActionCheckIn {
		next, result, err = b.workflow.CheckIn(ctx, status, locator)
	} else {
		next, result, err = b.workflow.CheckOut(ctx, status, locator)
	}
	if err != nil {
		fallback := fmt.Sprintf("%s failed", actionLabel(action))
		s.failTo(w, r, "/attendance", err, fallback)
		return
	}

	if err := cache.Save(ctx, next); err != nil {
		s.logger.Warn("cache attendance status failed", "err", err)
	}
	redirectWith(w, r, "/attendance", "message", result.Summary(action))
}

func actionLabel(action attendance.Action) string {
	if action == attendance.ActionCheckOut {
		return "Check-out"
	}
	return "Check-in"
}

func (s *server) adminAttendancePage(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	days, err := b.workflow.AllHistory(r.Context(), page, historyPageSize)
	errMsg, msg := flash(r)
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		errMsg = apperr.UserMessage(err, "Failed to fetch attendance")
	}
	s.render(w, r, "admin_attendance.html", pageData{
		Title:   "All Attendance",
		Error:   errMsg,
		Message: msg,
		Days:    days,
	})
}

func (s *server) exportAttendance(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	limit := min(parsePositiveInt(r.URL.Query().Get("limit"), exportPageLimit), exportPageLimit)
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	days, err := b.workflow.AllHistory(r.Context(), page, limit)
	if err != nil {
		s.failTo(w, r, "/admin/attendance", err, "Failed to export attendance")
		return
	}
	writeWorkbookHeaders(w, "attendance.xlsx")
	if err := spreadsheet.WriteAttendance(w, days.Items, s.loc); err != nil {
		s.logger.Error("write attendance workbook failed", "err", err)
	}
}

func writeWorkbookHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
}
