package attendance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/gateway"
	"github.com/phillip-england/hrsuite/internal/paging"
)

const todayLookback = 31

// PunchResult is what the API reports for an accepted check-in or check-out.
type PunchResult struct {
	Time         time.Time
	WithinRadius bool
	Distance     *float64
}

// API is the attendance part of the remote HR API.
type API interface {
	Mine(ctx context.Context, page, limit int) (paging.Page[Day], error)
	All(ctx context.Context, page, limit int) (paging.Page[Day], error)
	Punch(ctx context.Context, action Action, pos Position) (PunchResult, error)
}

type Workflow struct {
	api API
	loc *time.Location
	now func() time.Time
}

func NewWorkflow(api API, loc *time.Location) *Workflow {
	if loc == nil {
		loc = time.Local
	}
	return &Workflow{api: api, loc: loc, now: time.Now}
}

// Today loads the employee's recent records and derives today's status.
func (w *Workflow) Today(ctx context.Context) (Status, error) {
	page, err := w.api.Mine(ctx, 1, todayLookback)
	if err != nil {
		return Status{}, err
	}
	return StatusFor(page.Items, Today(w.now(), w.loc)), nil
}

func (w *Workflow) History(ctx context.Context, page, limit int) (paging.Page[Day], error) {
	return w.api.Mine(ctx, page, limit)
}

// AllHistory lists every user's records; the API only serves it to admins.
func (w *Workflow) AllHistory(ctx context.Context, page, limit int) (paging.Page[Day], error) {
	return w.api.All(ctx, page, limit)
}

func (w *Workflow) CheckIn(ctx context.Context, status Status, locator Locator) (Status, PunchResult, error) {
	if !status.CanCheckIn() {
		if status.Phase == Completed {
			return status, PunchResult{}, apperr.Conflict("You have already checked in and out today")
		}
		return status, PunchResult{}, apperr.Conflict("You have already checked in today")
	}
	return w.punch(ctx, status, ActionCheckIn, locator)
}

func (w *Workflow) CheckOut(ctx context.Context, status Status, locator Locator) (Status, PunchResult, error) {
	if !status.CanCheckOut() {
		if status.Phase == Completed {
			return status, PunchResult{}, apperr.Conflict("You have already checked out today")
		}
		return status, PunchResult{}, apperr.Conflict("You must check in before checking out")
	}
	return w.punch(ctx, status, ActionCheckOut, locator)
}

func (w *Workflow) punch(ctx context.Context, status Status, action Action, locator Locator) (Status, PunchResult, error) {
	if locator == nil {
		return status, PunchResult{}, apperr.Geolocation(geoMessages[GeoUnsupported])
	}
	pos, err := locator.Locate(ctx)
	if err != nil {
		if !errors.Is(err, apperr.ErrGeolocation) {
			err = &apperr.Error{Kind: apperr.KindGeolocation, Message: geoMessages[GeoUnavailable], Err: err}
		}
		return status, PunchResult{}, err
	}

	result, err := w.api.Punch(ctx, action, pos)
	if err != nil {
		return status, PunchResult{}, err
	}
	if result.Time.IsZero() {
		result.Time = w.now()
	}

	punch := &Punch{Time: result.Time, WithinRadius: result.WithinRadius, Distance: result.Distance}
	day := Day{Date: status.Date}
	if status.Day != nil {
		day = *status.Day
	}
	next := Status{Date: status.Date, Day: &day}
	switch action {
	case ActionCheckIn:
		day.CheckIn = punch
		next.Phase = CheckedIn
	case ActionCheckOut:
		day.CheckOut = punch
		next.Phase = Completed
	}
	return next, result, nil
}

// Summary is the confirmation shown after a successful punch.
func (r PunchResult) Summary(action Action) string {
	label := "Check-in"
	if action == ActionCheckOut {
		label = "Check-out"
	}
	within := "No"
	if r.WithinRadius {
		within = "Yes"
	}
	if r.Distance == nil {
		return fmt.Sprintf("%s successful! Within Radius: %s", label, within)
	}
	return fmt.Sprintf("%s successful! Distance: %.2fm, Within Radius: %s", label, *r.Distance, within)
}

type gatewayAPI struct {
	gw *gateway.Gateway
}

// NewAPI binds the attendance endpoints of the remote API to gw.
func NewAPI(gw *gateway.Gateway) API {
	return &gatewayAPI{gw: gw}
}

func (a *gatewayAPI) Mine(ctx context.Context, page, limit int) (paging.Page[Day], error) {
	var out paging.Page[Day]
	err := a.gw.Do(ctx, http.MethodGet, "/api/attendance/me?"+paging.Query(page, limit, nil), nil, &out)
	if out.Limit == 0 {
		out.Limit = limit
	}
	return out, err
}

func (a *gatewayAPI) All(ctx context.Context, page, limit int) (paging.Page[Day], error) {
	var out paging.Page[Day]
	err := a.gw.Do(ctx, http.MethodGet, "/api/admin/attendance?"+paging.Query(page, limit, nil), nil, &out)
	if out.Limit == 0 {
		out.Limit = limit
	}
	return out, err
}

type punchResponse struct {
	Distance     *float64 `json:"distance"`
	WithinRadius bool     `json:"withinRadius"`
	Time         string   `json:"time"`
	Attendance   *Day     `json:"attendance"`
}

func (a *gatewayAPI) Punch(ctx context.Context, action Action, pos Position) (PunchResult, error) {
	var resp punchResponse
	body := map[string]float64{"lat": pos.Latitude, "lng": pos.Longitude}
	if err := a.gw.Do(ctx, http.MethodPost, "/api/attendance/"+string(action), body, &resp); err != nil {
		return PunchResult{}, err
	}
	result := PunchResult{WithinRadius: resp.WithinRadius, Distance: resp.Distance}
	if t, err := time.Parse(time.RFC3339, resp.Time); err == nil {
		result.Time = t
	}
	if resp.Attendance != nil {
		var p *Punch
		if action == ActionCheckIn {
			p = resp.Attendance.CheckIn
		} else {
			p = resp.Attendance.CheckOut
		}
		if p != nil {
			if result.Time.IsZero() {
				result.Time = p.Time
			}
			if !resp.WithinRadius {
				result.WithinRadius = p.WithinRadius
			}
		}
	}
	return result, nil
}
