package devapi

import (
	"math"
	"net/http"
	"sort"
	"time"
)

const (
	dateLayout        = "2006-01-02"
	earthRadiusMeters = 6371000.0
)

type punch struct {
	Time         time.Time `json:"time"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Distance     float64   `json:"distance"`
	WithinRadius bool      `json:"withinRadius"`
}

type day struct {
	ID       string     `json:"_id"`
	UserID   string     `json:"-"`
	Date     string     `json:"date"`
	CheckIn  *punch     `json:"checkIn,omitempty"`
	CheckOut *punch     `json:"checkOut,omitempty"`
	User     *userBrief `json:"user,omitempty"`
}

type userBrief struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
}

type office struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// haversine returns the great-circle distance between two points in meters.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func (s *Server) todayLocked() string {
	return s.now().In(s.cfg.Location).Format(dateLayout)
}

func (s *Server) dayForLocked(userID, date string) *day {
	for _, d := range s.attendance {
		if d.UserID == userID && d.Date == date {
			return d
		}
	}
	return nil
}

// withUserLocked returns a copy of d carrying its owner's details.
func (s *Server) withUserLocked(d *day) day {
	out := *d
	if u := s.users[d.UserID]; u != nil {
		out.User = &userBrief{ID: u.ID, Name: u.Name, Email: u.Email, Department: u.Department}
	}
	return out
}

// sortedDaysLocked returns records newest first, optionally for one user.
func (s *Server) sortedDaysLocked(userID string) []day {
	var out []day
	for _, d := range s.attendance {
		if userID == "" || d.UserID == userID {
			out = append(out, s.withUserLocked(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].User != nil && out[j].User != nil && out[i].User.Name < out[j].User.Name
	})
	return out
}

func (s *Server) myAttendance(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	days := s.sortedDaysLocked(u.ID)
	s.mu.Unlock()
	writeData(w, http.StatusOK, paginate(days, r))
}

func (s *Server) allAttendance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	days := s.sortedDaysLocked("")
	s.mu.Unlock()
	writeData(w, http.StatusOK, paginate(days, r))
}

type punchRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (s *Server) checkIn(w http.ResponseWriter, r *http.Request) {
	s.recordPunch(w, r, true)
}

func (s *Server) checkOut(w http.ResponseWriter, r *http.Request) {
	s.recordPunch(w, r, false)
}

func (s *Server) recordPunch(w http.ResponseWriter, r *http.Request, in bool) {
	var body punchRequest
	if err := decodeJSON(w, r, &body); err != nil || body.Lat == nil || body.Lng == nil {
		writeMessage(w, http.StatusBadRequest, "Location (lat, lng) is required")
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.office == nil {
		writeMessage(w, http.StatusBadRequest, "Office location not set")
		return
	}
	today := s.todayLocked()
	d := s.dayForLocked(u.ID, today)
	switch {
	case in && d != nil && d.CheckIn != nil:
		writeMessage(w, http.StatusBadRequest, "Already checked in today")
		return
	case !in && (d == nil || d.CheckIn == nil):
		writeMessage(w, http.StatusBadRequest, "You have not checked in today")
		return
	case !in && d.CheckOut != nil:
		writeMessage(w, http.StatusBadRequest, "Already checked out today")
		return
	}

	dist := haversine(*body.Lat, *body.Lng, s.office.Latitude, s.office.Longitude)
	p := &punch{
		Time:         s.now(),
		Lat:          *body.Lat,
		Lng:          *body.Lng,
		Distance:     dist,
		WithinRadius: dist <= s.office.Radius,
	}
	if d == nil {
		d = &day{ID: newID(), UserID: u.ID, Date: today}
		s.attendance = append(s.attendance, d)
	}
	if in {
		d.CheckIn = p
	} else {
		d.CheckOut = p
	}

	writeData(w, http.StatusOK, map[string]any{
		"distance":     math.Round(dist*100) / 100,
		"withinRadius": p.WithinRadius,
		"time":         p.Time.Format(time.RFC3339),
		"attendance":   s.withUserLocked(d),
	})
}

func (s *Server) summary(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := s.todayLocked()
	total, present, late := 0, 0, 0
	for _, u := range s.users {
		if u.Role != roleEmployee {
			continue
		}
		total++
		d := s.dayForLocked(u.ID, today)
		if d == nil || d.CheckIn == nil {
			continue
		}
		present++
		local := d.CheckIn.Time.In(s.cfg.Location)
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
		if local.Sub(midnight) > s.cfg.LateAfter {
			late++
		}
	}
	writeData(w, http.StatusOK, map[string]int{
		"totalEmployees": total,
		"present":        present,
		"absent":         total - present,
		"lateCount":      late,
	})
}

func (s *Server) getOffice(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.office == nil {
		writeData(w, http.StatusOK, nil)
		return
	}
	writeData(w, http.StatusOK, s.office)
}

func (s *Server) saveOffice(w http.ResponseWriter, r *http.Request) {
	var body office
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Latitude < -90 || body.Latitude > 90 || body.Longitude < -180 || body.Longitude > 180 || body.Radius <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid office location")
		return
	}
	s.mu.Lock()
	s.office = &body
	s.mu.Unlock()
	writeData(w, http.StatusOK, body)
}

// SetOffice configures the office directly.
func (s *Server) SetOffice(lat, lng, radius float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.office = &office{Latitude: lat, Longitude: lng, Radius: radius}
}
