package devapi

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

type employeeRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Designation   string `json:"designation"`
	Department    string `json:"department"`
	DateOfJoining string `json:"dateOfJoining"`
	Password      string `json:"password"`
}

func (s *Server) sortedUsersLocked() []user {
	out := make([]user, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Server) listEmployees(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := s.sortedUsersLocked()
	s.mu.Unlock()
	employees := users[:0]
	for _, u := range users {
		if u.Role == roleEmployee {
			employees = append(employees, u)
		}
	}
	writeData(w, http.StatusOK, paginate(employees, r))
}

func (s *Server) getEmployee(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := s.users[r.PathValue("id")]
	var out user
	if u != nil {
		out = *u
	}
	s.mu.Unlock()
	if u == nil {
		writeMessage(w, http.StatusNotFound, "Employee not found")
		return
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) createEmployee(w http.ResponseWriter, r *http.Request) {
	var body employeeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.AddAccount(Account{Name: body.Name, Email: body.Email, Password: body.Password, Role: roleEmployee})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errDuplicateEmail) {
			status = http.StatusConflict
		}
		writeMessage(w, status, err.Error())
		return
	}
	s.mu.Lock()
	u := s.users[id]
	u.Phone = strings.TrimSpace(body.Phone)
	u.Designation = strings.TrimSpace(body.Designation)
	u.Department = strings.TrimSpace(body.Department)
	u.DateOfJoining = strings.TrimSpace(body.DateOfJoining)
	out := *u
	s.mu.Unlock()
	writeData(w, http.StatusCreated, out)
}

func (s *Server) updateEmployee(w http.ResponseWriter, r *http.Request) {
	var body employeeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[r.PathValue("id")]
	if u == nil {
		writeMessage(w, http.StatusNotFound, "Employee not found")
		return
	}
	if email := strings.ToLower(strings.TrimSpace(body.Email)); email != "" && email != u.Email {
		if s.userByEmailLocked(email) != nil {
			writeMessage(w, http.StatusConflict, errDuplicateEmail.Error())
			return
		}
		u.Email = email
	}
	if name := strings.TrimSpace(body.Name); name != "" {
		u.Name = name
	}
	u.Phone = strings.TrimSpace(body.Phone)
	u.Designation = strings.TrimSpace(body.Designation)
	u.Department = strings.TrimSpace(body.Department)
	u.DateOfJoining = strings.TrimSpace(body.DateOfJoining)
	writeData(w, http.StatusOK, *u)
}

func (s *Server) deleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		writeMessage(w, http.StatusNotFound, "Employee not found")
		return
	}
	delete(s.users, id)
	for tokenID, owner := range s.accessTokens {
		if owner == id {
			delete(s.accessTokens, tokenID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Employee removed"})
}

type leave struct {
	ID         string     `json:"_id"`
	UserID     string     `json:"-"`
	Type       string     `json:"type"`
	StartDate  time.Time  `json:"startDate"`
	EndDate    time.Time  `json:"endDate"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	User       *userBrief `json:"user,omitempty"`
}

var leaveTypes = map[string]bool{"casual": true, "sick": true, "annual": true, "emergency": true, "other": true}

func (s *Server) leavesLocked(match func(*leave) bool) []leave {
	var out []leave
	for _, l := range s.leaves {
		if !match(l) {
			continue
		}
		c := *l
		if u := s.users[l.UserID]; u != nil {
			c.User = &userBrief{ID: u.ID, Name: u.Name, Email: u.Email, Department: u.Department}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Server) applyLeave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type      string `json:"type"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Reason    string `json:"reason"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start, startErr := time.Parse(dateLayout, body.StartDate)
	end, endErr := time.Parse(dateLayout, body.EndDate)
	switch {
	case startErr != nil || endErr != nil || strings.TrimSpace(body.Reason) == "":
		writeMessage(w, http.StatusBadRequest, "Please provide all required fields")
		return
	case !leaveTypes[body.Type]:
		writeMessage(w, http.StatusBadRequest, "Invalid leave type")
		return
	case start.After(end):
		writeMessage(w, http.StatusBadRequest, "Start date must be before end date")
		return
	}

	u := currentUser(r)
	s.mu.Lock()
	l := &leave{
		ID:        newID(),
		UserID:    u.ID,
		Type:      body.Type,
		StartDate: start,
		EndDate:   end,
		Reason:    strings.TrimSpace(body.Reason),
		Status:    "pending",
		CreatedAt: s.now(),
	}
	s.leaves = append(s.leaves, l)
	out := *l
	s.mu.Unlock()
	writeData(w, http.StatusCreated, out)
}

func (s *Server) myLeaves(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	out := s.leavesLocked(func(l *leave) bool { return l.UserID == u.ID })
	s.mu.Unlock()
	writeData(w, http.StatusOK, paginate(out, r))
}

func (s *Server) allLeaves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, typ, userID := q.Get("status"), q.Get("type"), q.Get("userId")
	s.mu.Lock()
	out := s.leavesLocked(func(l *leave) bool {
		return (status == "" || l.Status == status) &&
			(typ == "" || l.Type == typ) &&
			(userID == "" || l.UserID == userID)
	})
	s.mu.Unlock()
	writeData(w, http.StatusOK, paginate(out, r))
}

func (s *Server) setLeaveStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil || (body.Status != "approved" && body.Status != "rejected") {
		writeMessage(w, http.StatusBadRequest, "Status must be approved or rejected")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leaves {
		if l.ID != r.PathValue("id") {
			continue
		}
		if l.Status != "pending" {
			writeMessage(w, http.StatusConflict, "Leave has already been reviewed")
			return
		}
		now := s.now()
		l.Status = body.Status
		l.ReviewedAt = &now
		writeData(w, http.StatusOK, *l)
		return
	}
	writeMessage(w, http.StatusNotFound, "Leave not found")
}
