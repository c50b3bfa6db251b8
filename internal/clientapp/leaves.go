package clientapp

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/hrapi"
)

const (
	myLeavesPageSize     = 5
	manageLeavesPageSize = 10
)

func (s *server) leavesPage(w http.ResponseWriter, r *http.Request) {
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	errMsg, msg := flash(r)
	s.renderLeaves(w, r, page, pageData{Error: errMsg, Message: msg})
}

func (s *server) renderLeaves(w http.ResponseWriter, r *http.Request, page int, data pageData) {
	leaves, err := browserFrom(r).hr.MyLeaves(r.Context(), page, myLeavesPageSize)
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		if data.Error == "" {
			data.Error = apperr.UserMessage(err, "Failed to fetch leaves")
		}
	}
	data.Title = "Leaves"
	data.Leaves = leaves
	data.LeaveTypes = hrapi.LeaveTypes
	if data.LeaveForm.Type == "" {
		data.LeaveForm.Type = hrapi.LeaveCasual
	}
	s.render(w, r, "leaves.html", data)
}

func (s *server) applyLeave(w http.ResponseWriter, r *http.Request) {
	in := hrapi.LeaveInput{
		Type:      hrapi.LeaveType(strings.TrimSpace(r.FormValue("type"))),
		StartDate: strings.TrimSpace(r.FormValue("startDate")),
		EndDate:   strings.TrimSpace(r.FormValue("endDate")),
		Reason:    r.FormValue("reason"),
	}
	if err := browserFrom(r).hr.ApplyLeave(r.Context(), in); err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		// Keep what was typed so the form can be corrected.
		s.renderLeaves(w, r, 1, pageData{
			Error:     apperr.UserMessage(err, "Failed to apply for leave"),
			LeaveForm: in,
		})
		return
	}
	redirectWith(w, r, "/leaves", "message", "Leave application submitted")
}

func (s *server) manageLeavesPage(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	ctx := r.Context()
	q := r.URL.Query()
	filter := hrapi.LeaveFilter{
		Page:   parsePositiveInt(q.Get("page"), 1),
		Limit:  manageLeavesPageSize,
		Status: hrapi.LeaveStatus(strings.TrimSpace(q.Get("status"))),
		Type:   hrapi.LeaveType(strings.TrimSpace(q.Get("type"))),
		UserID: strings.TrimSpace(q.Get("userId")),
	}
	errMsg, msg := flash(r)

	leaves, err := b.hr.AllLeaves(ctx, filter)
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		errMsg = apperr.UserMessage(err, "Failed to fetch leaves")
	}
	employees, err := b.hr.ListEmployees(ctx, 1, employeeScanLimit)
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		s.logger.Warn("load employee filter options failed", "err", err)
	}

	s.render(w, r, "leaves_manage.html", pageData{
		Title:         "Manage Leaves",
		Error:         errMsg,
		Message:       msg,
		Leaves:        leaves,
		LeaveTypes:    hrapi.LeaveTypes,
		LeaveStatuses: hrapi.LeaveStatuses,
		LeaveFilter: leaveFilterView{
			Status: string(filter.Status),
			Type:   string(filter.Type),
			UserID: filter.UserID,
		},
		FilterOptions: employees.Items,
		ReturnQuery:   manageReturnQuery(r.URL.Query(), true),
		PagerBase:     manageReturnQuery(r.URL.Query(), false),
	})
}

func manageReturnQuery(q url.Values, withPage bool) string {
	keep := url.Values{}
	for _, key := range []string{"status", "type", "userId", "page"} {
		if key == "page" && !withPage {
			continue
		}
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			keep.Set(key, v)
		}
	}
	if len(keep) == 0 {
		return "/leaves/manage"
	}
	return "/leaves/manage?" + keep.Encode()
}

func (s *server) setLeaveStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	back := r.FormValue("return")
	if !strings.HasPrefix(back, "/leaves/manage") {
		back = "/leaves/manage"
	}
	current := hrapi.LeaveStatus(strings.TrimSpace(r.FormValue("current")))
	next := hrapi.LeaveStatus(strings.TrimSpace(r.FormValue("status")))
	if err := browserFrom(r).hr.SetLeaveStatus(r.Context(), id, current, next); err != nil {
		s.failTo(w, r, back, err, "Failed to update leave status")
		return
	}
	redirectWith(w, r, back, "message", "Leave "+string(next))
}
