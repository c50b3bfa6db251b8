// Package hrapi is a typed client for the employee, leave, office location
// and summary resources of the remote HR API.
package hrapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/gateway"
	"github.com/phillip-england/hrsuite/internal/paging"
)

const dateLayout = "2006-01-02"

type Client struct {
	gw *gateway.Gateway
}

func New(gw *gateway.Gateway) *Client {
	return &Client{gw: gw}
}

type Employee struct {
	ID            string `json:"_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	Designation   string `json:"designation,omitempty"`
	Department    string `json:"department,omitempty"`
	DateOfJoining string `json:"dateOfJoining,omitempty"`
	Role          string `json:"role,omitempty"`
}

// JoinedOn is the joining date as YYYY-MM-DD, or empty.
func (e Employee) JoinedOn() string {
	if len(e.DateOfJoining) >= len(dateLayout) {
		return e.DateOfJoining[:len(dateLayout)]
	}
	return e.DateOfJoining
}

// Matches implements the employee list search: a case-insensitive match on
// name, email, designation or department, or a substring of the phone.
func (e Employee) Matches(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	for _, field := range []string{e.Name, e.Email, e.Designation, e.Department} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return strings.Contains(e.Phone, query)
}

type EmployeeInput struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Designation   string `json:"designation"`
	Department    string `json:"department"`
	DateOfJoining string `json:"dateOfJoining,omitempty"`
	Password      string `json:"password,omitempty"`
}

// Validate checks the fields the form requires. A password is required only
// when creating.
func (in EmployeeInput) Validate(creating bool) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return apperr.Validation("Name and email are required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return apperr.Validation("Enter a valid email address")
	}
	if creating && in.Password == "" {
		return apperr.Validation("Password is required for new employees")
	}
	if in.DateOfJoining != "" {
		if _, err := time.Parse(dateLayout, in.DateOfJoining); err != nil {
			return apperr.Validation("Date of joining must be YYYY-MM-DD")
		}
	}
	return nil
}

func (c *Client) ListEmployees(ctx context.Context, page, limit int) (paging.Page[Employee], error) {
	var out paging.Page[Employee]
	err := c.gw.Do(ctx, http.MethodGet, "/api/employees?"+paging.Query(page, limit, nil), nil, &out)
	if out.Limit == 0 {
		out.Limit = limit
	}
	return out, err
}

func (c *Client) GetEmployee(ctx context.Context, id string) (Employee, error) {
	var out Employee
	err := c.gw.Do(ctx, http.MethodGet, "/api/employees/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) CreateEmployee(ctx context.Context, in EmployeeInput) error {
	if err := in.Validate(true); err != nil {
		return err
	}
	return c.gw.Do(ctx, http.MethodPost, "/api/employees", in, nil)
}

func (c *Client) UpdateEmployee(ctx context.Context, id string, in EmployeeInput) error {
	if err := in.Validate(false); err != nil {
		return err
	}
	in.Password = ""
	return c.gw.Do(ctx, http.MethodPut, "/api/employees/"+url.PathEscape(id), in, nil)
}

func (c *Client) DeleteEmployee(ctx context.Context, id string) error {
	return c.gw.Do(ctx, http.MethodDelete, "/api/employees/"+url.PathEscape(id), nil, nil)
}

type LeaveType string

const (
	LeaveCasual    LeaveType = "casual"
	LeaveSick      LeaveType = "sick"
	LeaveAnnual    LeaveType = "annual"
	LeaveEmergency LeaveType = "emergency"
	LeaveOther     LeaveType = "other"
)

var LeaveTypes = []LeaveType{LeaveCasual, LeaveSick, LeaveAnnual, LeaveEmergency, LeaveOther}

func (t LeaveType) Valid() bool {
	for _, lt := range LeaveTypes {
		if t == lt {
			return true
		}
	}
	return false
}

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

var LeaveStatuses = []LeaveStatus{LeavePending, LeaveApproved, LeaveRejected}

// CanTransition reports whether a leave may move from s to next. Only a
// pending leave may be reviewed, and only to a terminal status.
func (s LeaveStatus) CanTransition(next LeaveStatus) bool {
	return s == LeavePending && (next == LeaveApproved || next == LeaveRejected)
}

type Leave struct {
	ID         string      `json:"_id"`
	Employee   *Employee   `json:"user,omitempty"`
	Type       LeaveType   `json:"type"`
	StartDate  time.Time   `json:"startDate"`
	EndDate    time.Time   `json:"endDate"`
	Reason     string      `json:"reason"`
	Status     LeaveStatus `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	ReviewedAt *time.Time  `json:"reviewedAt,omitempty"`
}

type LeaveInput struct {
	Type      LeaveType `json:"type"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Reason    string    `json:"reason"`
}

func (in LeaveInput) Validate() error {
	if in.StartDate == "" || in.EndDate == "" || strings.TrimSpace(in.Reason) == "" {
		return apperr.Validation("Please fill all required fields")
	}
	if !in.Type.Valid() {
		return apperr.Validation("Choose a valid leave type")
	}
	start, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		return apperr.Validation("Start date must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, in.EndDate)
	if err != nil {
		return apperr.Validation("End date must be YYYY-MM-DD")
	}
	if start.After(end) {
		return apperr.Validation("Start date must be before end date")
	}
	return nil
}

type LeaveFilter struct {
	Page   int
	Limit  int
	Status LeaveStatus
	Type   LeaveType
	UserID string
}

func (c *Client) ApplyLeave(ctx context.Context, in LeaveInput) error {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := in.Validate(); err != nil {
		return err
	}
	return c.gw.Do(ctx, http.MethodPost, "/api/leaves/apply", in, nil)
}

func (c *Client) MyLeaves(ctx context.Context, page, limit int) (paging.Page[Leave], error) {
	var out paging.Page[Leave]
	err := c.gw.Do(ctx, http.MethodGet, "/api/leaves/my-leaves?"+paging.Query(page, limit, nil), nil, &out)
	if out.Limit == 0 {
		out.Limit = limit
	}
	return out, err
}

func (c *Client) AllLeaves(ctx context.Context, f LeaveFilter) (paging.Page[Leave], error) {
	var out paging.Page[Leave]
	q := paging.Query(f.Page, f.Limit, map[string]string{
		"status": string(f.Status),
		"type":   string(f.Type),
		"userId": f.UserID,
	})
	err := c.gw.Do(ctx, http.MethodGet, "/api/leaves/all?"+q, nil, &out)
	if out.Limit == 0 {
		out.Limit = f.Limit
	}
	return out, err
}

// SetLeaveStatus reviews a leave. The caller passes the status it last saw
// so a leave already reviewed is refused without a request.
func (c *Client) SetLeaveStatus(ctx context.Context, id string, current, next LeaveStatus) error {
	if !current.CanTransition(next) {
		return apperr.Conflict(fmt.Sprintf("A %s leave cannot be marked %s", current, next))
	}
	body := map[string]string{"status": string(next)}
	return c.gw.Do(ctx, http.MethodPut, "/api/leaves/"+url.PathEscape(id)+"/status", body, nil)
}

type OfficeLocation struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius"`
}

// ParseOffice reads the office form. All three fields are required.
func ParseOffice(lat, lng, radius string) (OfficeLocation, error) {
	lat, lng, radius = strings.TrimSpace(lat), strings.TrimSpace(lng), strings.TrimSpace(radius)
	if lat == "" || lng == "" || radius == "" {
		return OfficeLocation{}, apperr.Validation("All fields are required")
	}
	var o OfficeLocation
	var err error
	if o.Latitude, err = strconv.ParseFloat(lat, 64); err != nil || o.Latitude < -90 || o.Latitude > 90 {
		return OfficeLocation{}, apperr.Validation("Latitude must be a number between -90 and 90")
	}
	if o.Longitude, err = strconv.ParseFloat(lng, 64); err != nil || o.Longitude < -180 || o.Longitude > 180 {
		return OfficeLocation{}, apperr.Validation("Longitude must be a number between -180 and 180")
	}
	if o.RadiusMeters, err = strconv.ParseFloat(radius, 64); err != nil || o.RadiusMeters <= 0 {
		return OfficeLocation{}, apperr.Validation("Radius must be a positive number of meters")
	}
	return o, nil
}

// Office returns the configured office, or nil when none is set yet.
func (c *Client) Office(ctx context.Context) (*OfficeLocation, error) {
	var raw json.RawMessage
	if err := c.gw.Do(ctx, http.MethodGet, "/api/employees/office", nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var o OfficeLocation
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode office location: %w", err)
	}
	return &o, nil
}

func (c *Client) SaveOffice(ctx context.Context, o OfficeLocation) error {
	return c.gw.Do(ctx, http.MethodPost, "/api/employees/office", o, nil)
}

type Summary struct {
	TotalEmployees int `json:"totalEmployees"`
	Present        int `json:"present"`
	Absent         int `json:"absent"`
	LateCount      int `json:"lateCount"`
}

func (c *Client) AdminSummary(ctx context.Context) (Summary, error) {
	var out Summary
	err := c.gw.Do(ctx, http.MethodGet, "/api/admin/summary", nil, &out)
	return out, err
}
