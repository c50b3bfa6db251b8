// Package attendance runs the daily check-in / check-out cycle of one
// employee.
//
// A day moves NotCheckedIn -> CheckedIn -> Completed. The current phase is
// derived once per page load from the employee's records (StatusFor) and
// every transition is validated locally before the API is contacted, so an
// out-of-order action never leaves the process.
package attendance

import (
	"encoding/json"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type Phase int

const (
	NotCheckedIn Phase = iota
	CheckedIn
	Completed
)

func (p Phase) String() string {
	switch p {
	case CheckedIn:
		return "checked in"
	case Completed:
		return "completed"
	default:
		return "not checked in"
	}
}

type Action string

const (
	ActionCheckIn  Action = "checkin"
	ActionCheckOut Action = "checkout"
)

type Punch struct {
	Time         time.Time `json:"time"`
	WithinRadius bool      `json:"withinRadius"`
	Distance     *float64  `json:"distance,omitempty"`
}

// EmployeeRef is the owner of a record in the admin-wide listing.
type EmployeeRef struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

// Day is one user's record for one calendar date.
type Day struct {
	ID       string       `json:"_id"`
	Date     string       `json:"date"`
	CheckIn  *Punch       `json:"checkIn,omitempty"`
	CheckOut *Punch       `json:"checkOut,omitempty"`
	Employee *EmployeeRef `json:"user,omitempty"`
}

// UnmarshalJSON normalises the date to YYYY-MM-DD; the API sends either a
// plain date or a full timestamp.
func (d *Day) UnmarshalJSON(data []byte) error {
	type plain Day
	var aux plain
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Day(aux)
	d.Date = normalizeDate(d.Date)
	return nil
}

// WithinRadius reports whether both punches of the day were inside the
// office radius. A day without a check-out is not.
func (d Day) WithinRadius() bool {
	return d.CheckIn != nil && d.CheckIn.WithinRadius && d.CheckOut != nil && d.CheckOut.WithinRadius
}

func (d Day) EmployeeName() string {
	if d.Employee == nil || d.Employee.Name == "" {
		return "Unknown"
	}
	return d.Employee.Name
}

func (d Day) phase() Phase {
	switch {
	case d.CheckIn == nil:
		return NotCheckedIn
	case d.CheckOut == nil:
		return CheckedIn
	default:
		return Completed
	}
}

// Status is the state of today's cycle.
type Status struct {
	Date  string
	Day   *Day
	Phase Phase
}

func (s Status) CanCheckIn() bool  { return s.Phase == NotCheckedIn }
func (s Status) CanCheckOut() bool { return s.Phase == CheckedIn }

// StatusFor picks today's record out of days. A record dated today with no
// check-in counts as not checked in.
func StatusFor(days []Day, today string) Status {
	today = normalizeDate(today)
	for i := range days {
		if days[i].Date != today {
			continue
		}
		day := days[i]
		return Status{Date: today, Day: &day, Phase: day.phase()}
	}
	return Status{Date: today, Phase: NotCheckedIn}
}

// Today formats now in loc as a record date.
func Today(now time.Time, loc *time.Location) string {
	if loc != nil {
		now = now.In(loc)
	}
	return now.Format(dateLayout)
}

func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(dateLayout) {
		if _, err := time.Parse(dateLayout, value[:len(dateLayout)]); err == nil {
			return value[:len(dateLayout)]
		}
	}
	return value
}
